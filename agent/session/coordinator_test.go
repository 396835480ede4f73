package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/findy-network/findy-wallet/agent/bus"
	"github.com/findy-network/findy-wallet/agent/connector"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/lainio/err2/assert"
)

const (
	addrA  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	addrA2 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addrB  = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

type fakeConnector struct {
	accounts []string
	err      error
	before   func()
}

func (f *fakeConnector) Request(_ context.Context, _ string, _ ...any) (json.RawMessage, error) {
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(f.accounts)
}

func TestCoordinator_Apply(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	changed, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrA, Kind: connector.KindExtensionA})
	assert.NoError(err)
	assert.That(changed)

	id, ok := c.Connected()
	assert.That(ok)
	assert.Equal(id, Identity{Address: addrA, Kind: connector.KindExtensionA, Live: true})

	changed, err = c.Apply(Event{Seq: 2, Type: AccountChanged, Address: addrA2})
	assert.NoError(err)
	assert.That(changed)
	id, _ = c.Connected()
	assert.Equal(id.Address, addrA2)
	assert.Equal(id.Kind, connector.KindExtensionA)

	changed, err = c.Apply(Event{Seq: 3, Type: Disconnected})
	assert.NoError(err)
	assert.That(changed)
	_, ok = c.Connected()
	assert.That(!ok)
}

func TestCoordinator_outOfOrder(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	// true order: connect(1), disconnect(2), connect(3); arrival order below
	c := New(nil)
	_, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrA, Kind: connector.KindExtensionA})
	assert.NoError(err)
	_, err = c.Apply(Event{Seq: 3, Type: Connected, Address: addrA2, Kind: connector.KindExtensionA})
	assert.NoError(err)
	changed, err := c.Apply(Event{Seq: 2, Type: Disconnected})
	assert.NoError(err)
	assert.That(!changed)

	id, ok := c.Connected()
	assert.That(ok)
	assert.Equal(id.Address, addrA2)

	// equal sequence is applied only once
	changed, err = c.Apply(Event{Seq: 3, Type: Disconnected})
	assert.NoError(err)
	assert.That(!changed)
	_, ok = c.Connected()
	assert.That(ok)
}

func TestCoordinator_emptyAccountsClears(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	_, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrB, Kind: connector.KindExtensionB})
	assert.NoError(err)

	changed, err := c.Apply(Event{Seq: 2, Type: AccountChanged})
	assert.NoError(err)
	assert.That(changed)
	id, ok := c.Connected()
	assert.That(!ok)
	assert.Equal(id, Identity{})
}

func TestCoordinator_accountChangedWithoutConnection(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	changed, err := c.Apply(Event{Seq: 5, Type: AccountChanged, Address: addrA})
	assert.NoError(err)
	assert.That(!changed)
	_, ok := c.Connected()
	assert.That(!ok)

	// the sequence advanced anyway
	changed, err = c.Apply(Event{Seq: 4, Type: Connected, Address: addrA, Kind: connector.KindExtensionA})
	assert.NoError(err)
	assert.That(!changed)
}

func TestCoordinator_invalidConnected(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	_, err := c.Apply(Event{Seq: 1, Type: Connected, Address: "0x123", Kind: connector.KindExtensionA})
	assert.That(errors.Is(err, werr.ErrInvalidAddress))
	assert.That(errors.Is(err, werr.ErrValidation))

	_, err = c.Apply(Event{Seq: 2, Type: Connected, Address: addrA, Kind: connector.KindExtensionB})
	assert.That(errors.Is(err, werr.ErrValidation))

	_, err = c.Apply(Event{Seq: 3, Type: Connected, Address: addrA, Kind: connector.KindNone})
	assert.That(errors.Is(err, werr.ErrValidation))

	// rejected events didn't consume their sequence numbers
	changed, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrA, Kind: connector.KindExtensionA})
	assert.NoError(err)
	assert.That(changed)
}

func TestCoordinator_RestoreAndRevalidate(t *testing.T) {
	tests := []struct {
		name    string
		conn    connector.Connector
		wantOK  bool
		want    Identity
		wantErr error
	}{
		{"live", &fakeConnector{accounts: []string{addrA2, addrA}}, true,
			Identity{Address: addrA2, Kind: connector.KindExtensionA, Live: true}, nil},
		{"empty accounts", &fakeConnector{accounts: []string{}}, false, Identity{}, nil},
		{"no extension", nil, false, Identity{}, nil},
		{"chain gone", &fakeConnector{err: &connector.ProviderError{Code: connector.CodeDisconnected}},
			false, Identity{}, nil},
		{"rejected", &fakeConnector{err: &connector.ProviderError{Code: connector.CodeUserRejected}},
			true, Identity{Address: addrA, Kind: connector.KindExtensionA}, werr.ErrUserRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()

			c := New(nil)
			c.Restore(addrA, connector.KindExtensionA)
			id, ok := c.Connected()
			assert.That(ok)
			assert.That(!id.Live)

			_, err := c.Revalidate(context.Background(), tt.conn)
			if tt.wantErr != nil {
				assert.That(errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(err)
			}
			id, ok = c.Connected()
			assert.Equal(ok, tt.wantOK)
			assert.Equal(id, tt.want)
		})
	}
}

func TestCoordinator_RevalidateStale(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	c.Restore(addrA, connector.KindExtensionA)

	conn := &fakeConnector{accounts: []string{}}
	conn.before = func() {
		// the user connects again while we wait for the extension
		_, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrA2, Kind: connector.KindExtensionA})
		assert.NoError(err)
	}
	changed, err := c.Revalidate(context.Background(), conn)
	assert.NoError(err)
	assert.That(!changed)

	id, ok := c.Connected()
	assert.That(ok)
	assert.Equal(id.Address, addrA2)
	assert.That(id.Live)
}

func TestCoordinator_RestoreNothing(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	c := New(nil)
	c.Restore("", connector.KindExtensionA)
	_, ok := c.Connected()
	assert.That(!ok)

	changed, err := c.Revalidate(context.Background(), &fakeConnector{accounts: []string{addrA}})
	assert.NoError(err)
	assert.That(!changed)
}

func TestCoordinator_broadcasts(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	s := bus.New()
	ch := s.AddListener("test")
	defer s.RmListener("test")

	c := New(s)
	_, err := c.Apply(Event{Seq: 1, Type: Connected, Address: addrB, Kind: connector.KindExtensionB})
	assert.NoError(err)

	n := <-ch
	assert.Equal(n.Type, bus.SessionChanged)
	assert.Equal(n.Address, addrB)
	assert.Equal(n.Kind, string(connector.KindExtensionB))
	assert.That(n.Live)
}
