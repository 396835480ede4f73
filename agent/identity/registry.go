/*
Package identity is the registry of managed identities. It keeps them in an
ordered sequence and maintains the active pointer. The sequence order is
significant: adding an address which already exists moves it to the end.

The registry keeps two invariants after every mutation:

 1. the active pointer is empty if and only if the registry is empty, else it
    resolves to an identity in the sequence
 2. addresses are unique in the sequence

Mutations build a new sequence and swap it in under the lock, which makes them
atomic for every reader.
*/
package identity

import (
	"sync"

	"github.com/findy-network/findy-wallet/agent/keys"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Registry holds the managed identities of one session.
type Registry struct {
	ids    []Identity
	active string // address, "" means none
	keys   Deriver

	l sync.RWMutex
}

// Snapshot is the persistable state of the Registry.
type Snapshot struct {
	Identities    []Identity
	ActiveAddress string
}

// New creates an empty registry which derives keys with d. A nil d means the
// default keys.Deriver.
func New(d Deriver) *Registry {
	if d == nil {
		d = keys.Deriver{}
	}
	return &Registry{keys: d}
}

// CreateIdentity generates a fresh identity with its secret material. It's
// not added to the registry.
func (r *Registry) CreateIdentity() (id Identity, err error) {
	defer err2.Handle(&err, "create identity")

	return fromPair(try.To1(r.keys.Generate())), nil
}

// ImportPhrase derives an identity from the recovery phrase. It fails with
// werr.ErrInvalidRecoveryPhrase. The identity is not added to the registry.
func (r *Registry) ImportPhrase(phrase string) (id Identity, err error) {
	defer err2.Handle(&err, "import phrase")

	return fromPair(try.To1(r.keys.FromPhrase(phrase))), nil
}

// ImportKey derives an identity from raw key material. It fails with
// werr.ErrInvalidKeyMaterial. The identity is not added to the registry.
func (r *Registry) ImportKey(raw string) (id Identity, err error) {
	defer err2.Handle(&err, "import key")

	return fromPair(try.To1(r.keys.FromKeyMaterial(raw))), nil
}

// Add inserts the identity at the end of the sequence. An identity with the
// same address is removed first, so re-adding moves it to the end. A non
// empty name renames the identity. The first identity becomes active,
// otherwise the active pointer is kept.
func (r *Registry) Add(id Identity, name string) error {
	if id.Address == "" {
		return werr.Errorf(werr.ErrInvalidAddress, "identity without address")
	}
	if name != "" {
		id.Name = name
	}

	r.l.Lock()
	defer r.l.Unlock()

	ids := appendUnique(append(r.ids[:0:0], r.ids...), id)

	active := r.active
	if active == "" {
		active = id.Address
	}
	r.swap(ids, active)
	glog.V(3).Infoln("identity added:", id)
	return nil
}

// Remove removes the identity by its address. It returns false if the address
// wasn't present. If the active identity is removed the first remaining one
// becomes active.
func (r *Registry) Remove(address string) bool {
	r.l.Lock()
	defer r.l.Unlock()

	if r.index(address) == -1 {
		return false
	}

	ids := make([]Identity, 0, len(r.ids))
	for _, old := range r.ids {
		if old.Address != address {
			ids = append(ids, old)
		}
	}
	active := r.active
	if active == address {
		active = ""
		if len(ids) > 0 {
			active = ids[0].Address
		}
	}
	r.swap(ids, active)
	glog.V(3).Infoln("identity removed:", address)
	return true
}

// SetActive points the active pointer to the address. It fails with
// werr.ErrUnknownIdentity if the address isn't present.
func (r *Registry) SetActive(address string) (changed bool, err error) {
	r.l.Lock()
	defer r.l.Unlock()

	if r.index(address) == -1 {
		return false, werr.Errorf(werr.ErrUnknownIdentity, "%s", address)
	}
	if r.active == address {
		return false, nil
	}
	r.active = address
	return true, nil
}

// Rename sets the display name. It returns false if the address isn't present.
func (r *Registry) Rename(address, name string) bool {
	r.l.Lock()
	defer r.l.Unlock()

	i := r.index(address)
	if i == -1 {
		return false
	}
	ids := append(r.ids[:0:0], r.ids...)
	ids[i].Name = name
	r.swap(ids, r.active)
	return true
}

// Identities returns a copy of the sequence in order.
func (r *Registry) Identities() []Identity {
	r.l.RLock()
	defer r.l.RUnlock()

	return append(r.ids[:0:0], r.ids...)
}

// Active resolves the active pointer.
func (r *Registry) Active() (Identity, bool) {
	r.l.RLock()
	defer r.l.RUnlock()

	if i := r.index(r.active); i != -1 {
		return r.ids[i], true
	}
	return Identity{}, false
}

// ActiveAddress returns the address of the active identity or "".
func (r *Registry) ActiveAddress() string {
	r.l.RLock()
	defer r.l.RUnlock()

	return r.active
}

// Get returns the identity by its address.
func (r *Registry) Get(address string) (Identity, bool) {
	r.l.RLock()
	defer r.l.RUnlock()

	if i := r.index(address); i != -1 {
		return r.ids[i], true
	}
	return Identity{}, false
}

// Len returns the amount of managed identities.
func (r *Registry) Len() int {
	r.l.RLock()
	defer r.l.RUnlock()

	return len(r.ids)
}

// Snapshot returns the persistable state.
func (r *Registry) Snapshot() Snapshot {
	r.l.RLock()
	defer r.l.RUnlock()

	return Snapshot{
		Identities:    append(r.ids[:0:0], r.ids...),
		ActiveAddress: r.active,
	}
}

// Restore replaces the whole state with the snapshot. Duplicate addresses are
// folded the way Add folds them, and a dangling or missing active address
// falls back to the first identity.
func (r *Registry) Restore(s Snapshot) {
	ids := make([]Identity, 0, len(s.Identities))
	for _, id := range s.Identities {
		if id.Address == "" {
			glog.Warningln("skipping restored identity without address")
			continue
		}
		ids = appendUnique(ids, id)
	}

	r.l.Lock()
	defer r.l.Unlock()

	r.swap(ids, s.ActiveAddress)
	if r.active != s.ActiveAddress && s.ActiveAddress != "" {
		glog.Warningln("restored active identity not found:", s.ActiveAddress)
	}
}

// swap installs the new state and enforces the active invariant. The caller
// holds the lock.
func (r *Registry) swap(ids []Identity, active string) {
	r.ids = ids
	r.active = active
	if r.index(active) == -1 {
		r.active = ""
		if len(ids) > 0 {
			r.active = ids[0].Address
		}
	}
}

func (r *Registry) index(address string) int {
	if address == "" {
		return -1
	}
	for i, id := range r.ids {
		if id.Address == address {
			return i
		}
	}
	return -1
}

// appendUnique removes the address of id from ids and appends id to the end.
func appendUnique(ids []Identity, id Identity) []Identity {
	out := ids[:0]
	for _, old := range ids {
		if old.Address != id.Address {
			out = append(out, old)
		}
	}
	return append(out, id)
}
