/*
Package session tracks the single connected identity supplied by a browser
wallet extension. Connector events may arrive out of order, so each carries a
sequence number and an event not newer than the last applied one is
discarded. Disconnecting and an empty-accounts report clear the connected
identity entirely.

The connected identity is a separate track from the managed identities of the
identity package and it's never promoted to the active managed identity.
*/
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/findy-network/findy-wallet/agent/bus"
	"github.com/findy-network/findy-wallet/agent/connector"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
)

// Coordinator owns the connected identity of one session.
type Coordinator struct {
	cur     Identity
	lastSeq uint64
	applied bool // lastSeq is valid

	station *bus.Station
	l       sync.Mutex
}

// New creates a coordinator with nothing connected. Changes are broadcast to
// the station, which can be nil.
func New(station *bus.Station) *Coordinator {
	return &Coordinator{station: station}
}

// Apply applies the event if it's newer than the last applied one. It returns
// true if the connected identity changed. A Connected event with an address
// which doesn't fit its kind is rejected and doesn't consume its sequence
// number.
func (c *Coordinator) Apply(ev Event) (changed bool, err error) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.applied && ev.Seq <= c.lastSeq {
		glog.V(3).Infoln("discarding stale event", ev, "last:", c.lastSeq)
		return false, nil
	}

	next := c.cur
	switch ev.Type {
	case Connected:
		if err := connector.ValidateAddress(ev.Kind, ev.Address); err != nil {
			return false, err
		}
		next = Identity{Address: ev.Address, Kind: ev.Kind, Live: true}
	case AccountChanged:
		switch {
		case ev.Address == "":
			next = Identity{}
		case c.cur.IsZero():
			glog.V(3).Infoln("account changed without connection, ignoring", ev)
		default:
			if err := connector.ValidateAddress(c.cur.Kind, ev.Address); err != nil {
				return false, err
			}
			next = Identity{Address: ev.Address, Kind: c.cur.Kind, Live: true}
		}
	case Disconnected:
		next = Identity{}
	default:
		return false, werr.Errorf(werr.ErrValidation, "unknown event type %d", ev.Type)
	}

	c.lastSeq = ev.Seq
	c.applied = true
	return c.set(next), nil
}

// Connected returns the connected identity. ok is false if nothing is
// connected.
func (c *Coordinator) Connected() (id Identity, ok bool) {
	c.l.Lock()
	defer c.l.Unlock()

	return c.cur, !c.cur.IsZero()
}

// Restore loads the last known connected identity. It's not live until
// Revalidate confirms it. The sequence numbering starts over.
func (c *Coordinator) Restore(address string, kind connector.Kind) {
	c.l.Lock()
	defer c.l.Unlock()

	c.applied = false
	c.lastSeq = 0
	if address == "" || kind == connector.KindNone {
		c.cur = Identity{}
		return
	}
	c.cur = Identity{Address: address, Kind: kind}
}

// Revalidate asks the extension which accounts it exposes without prompting
// the user. The first account becomes the live connected identity, and no
// accounts or an absent extension clear it. A rejection keeps the identity
// but it stays non-live. A result which arrives after a newer event was
// applied is discarded.
func (c *Coordinator) Revalidate(ctx context.Context, conn connector.Connector) (changed bool, err error) {
	c.l.Lock()
	seq, applied, cur := c.lastSeq, c.applied, c.cur
	c.l.Unlock()

	if cur.IsZero() {
		return false, nil
	}

	accs, err := connector.Accounts(ctx, conn)

	c.l.Lock()
	defer c.l.Unlock()

	if c.lastSeq != seq || c.applied != applied {
		glog.V(3).Infoln("revalidation result is stale, discarding")
		return false, nil
	}

	switch {
	case errors.Is(err, werr.ErrProviderUnavailable):
		glog.V(1).Infoln("extension not available, clearing connection")
		return c.set(Identity{}), nil
	case err != nil:
		return false, err
	case len(accs) == 0:
		return c.set(Identity{}), nil
	}
	if err := connector.ValidateAddress(cur.Kind, accs[0]); err != nil {
		return false, err
	}
	return c.set(Identity{Address: accs[0], Kind: cur.Kind, Live: true}), nil
}

// set installs next and broadcasts the change. The caller holds the lock.
func (c *Coordinator) set(next Identity) bool {
	if next == c.cur {
		return false
	}
	c.cur = next
	glog.V(2).Infoln("connected identity:", next.Address, next.Kind, "live:", next.Live)

	n := bus.NewNotify(bus.SessionChanged, next.Address)
	n.Kind = string(next.Kind)
	n.Live = next.Live
	c.station.Broadcast(n)
	return true
}
