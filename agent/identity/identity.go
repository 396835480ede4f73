package identity

import (
	"fmt"

	"github.com/findy-network/findy-wallet/agent/keys"
)

// Identity is a managed identity: a key-pair fully controlled by this wallet.
// The Registry owns the key material. Callers get copies and must not persist
// or log them on their own.
type Identity struct {
	Address        string `json:"address"`
	KeyMaterial    string `json:"keyMaterial"`
	RecoveryPhrase string `json:"recoveryPhrase,omitempty"`
	Name           string `json:"name,omitempty"`
}

// String redacts the secrets so identities can be logged safely.
func (i Identity) String() string {
	if i.Name == "" {
		return i.Address
	}
	return fmt.Sprintf("%s (%s)", i.Name, i.Address)
}

// GoString redacts the secrets from %#v as well.
func (i Identity) GoString() string {
	return fmt.Sprintf("identity.Identity{Address:%q, Name:%q}", i.Address, i.Name)
}

// HasPhrase tells if the identity can be re-derived from a recovery phrase.
func (i Identity) HasPhrase() bool {
	return i.RecoveryPhrase != ""
}

func fromPair(p keys.Pair) Identity {
	return Identity{
		Address:        p.Address,
		KeyMaterial:    p.KeyMaterial,
		RecoveryPhrase: p.RecoveryPhrase,
	}
}

// Deriver is the key-derivation collaborator. keys.Deriver is the production
// implementation.
type Deriver interface {
	Generate() (keys.Pair, error)
	FromPhrase(phrase string) (keys.Pair, error)
	FromKeyMaterial(raw string) (keys.Pair, error)
}
