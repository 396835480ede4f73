package session

import (
	"fmt"

	"github.com/findy-network/findy-wallet/agent/connector"
)

// EventType is the connector lifecycle event.
type EventType uint

const (
	Connected EventType = 1 + iota
	AccountChanged
	Disconnected
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "Connected"
	case AccountChanged:
		return "AccountChanged"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown Event"
	}
}

// Event is one connector lifecycle event. Seq is assigned by the connector
// bridge and grows monotonically in true emit order. An AccountChanged with
// empty Address is the empty-accounts report.
type Event struct {
	Seq     uint64
	Type    EventType
	Address string
	Kind    connector.Kind // only for Connected
}

func (e Event) String() string {
	return fmt.Sprintf("%s#%d(%s %s)", e.Type, e.Seq, e.Kind, e.Address)
}

// Identity is the connected identity. Its key never leaves the extension.
// Live is false until the extension has confirmed the account during this run.
type Identity struct {
	Address string
	Kind    connector.Kind
	Live    bool
}

// IsZero tells if nothing is connected.
func (i Identity) IsZero() bool {
	return i.Address == ""
}
