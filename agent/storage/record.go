package storage

import (
	"encoding/json"
	"fmt"

	"github.com/findy-network/findy-wallet/agent/connector"
	"github.com/findy-network/findy-wallet/agent/identity"
	"github.com/findy-network/findy-wallet/agent/session"
	"github.com/findy-network/findy-wallet/agent/werr"
)

// recordVersion is the current layout of the persisted record.
const recordVersion = 1

// State is what the wallet persists: the managed identities with the active
// pointer and the last known connected identity. Connected.Live is never
// persisted, and it's always false after Load.
type State struct {
	Registry  identity.Snapshot
	Connected session.Identity
}

type connectedRecord struct {
	Address string         `json:"address"`
	Kind    connector.Kind `json:"kind"`
}

type record struct {
	Version       int                 `json:"version"`
	Identities    []identity.Identity `json:"identities"`
	ActiveAddress *string             `json:"activeAddress"`
	Connected     *connectedRecord    `json:"connected"`
}

func (s State) marshal() ([]byte, error) {
	r := record{
		Version:    recordVersion,
		Identities: s.Registry.Identities,
	}
	if r.Identities == nil {
		r.Identities = []identity.Identity{}
	}
	if a := s.Registry.ActiveAddress; a != "" {
		r.ActiveAddress = &a
	}
	if !s.Connected.IsZero() {
		r.Connected = &connectedRecord{
			Address: s.Connected.Address,
			Kind:    s.Connected.Kind,
		}
	}
	return json.Marshal(r)
}

func unmarshal(data []byte) (s State, err error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return s, fmt.Errorf("%w: %v", werr.ErrStorageCorrupted, err)
	}
	if r.Version > recordVersion {
		return s, werr.Errorf(werr.ErrStorageCorrupted,
			"unknown record version %d", r.Version)
	}
	s.Registry.Identities = r.Identities
	if r.ActiveAddress != nil {
		s.Registry.ActiveAddress = *r.ActiveAddress
	}
	if c := r.Connected; c != nil && c.Address != "" {
		kind, err := connector.ParseKind(string(c.Kind))
		if err != nil {
			return State{}, fmt.Errorf("%w: %v", werr.ErrStorageCorrupted, err)
		}
		s.Connected = session.Identity{Address: c.Address, Kind: kind}
	}
	return s, nil
}
