// Package connector is the contract to the browser wallet extensions. An
// extension supplies at most one connected identity whose private key never
// leaves it; this package only knows how to talk to it and how to tell its
// addresses apart.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
	"github.com/mr-tron/base58"
)

// Kind tells which extension supplied the connected identity.
type Kind string

const (
	KindNone Kind = "none"

	// KindExtensionA is an injected EVM provider with hex addresses.
	KindExtensionA Kind = "extensionA"

	// KindExtensionB is a provider with base58 encoded 32 byte public keys.
	KindExtensionB Kind = "extensionB"
)

// EIP-1193 methods used for accounts.
const (
	MethodAccounts        = "eth_accounts"
	MethodRequestAccounts = "eth_requestAccounts"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
	CodeDisconnected = 4900
	CodeChainGone    = 4901
)

// ParseKind parses the persisted or configured kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindNone, KindExtensionA, KindExtensionB:
		return k, nil
	case "":
		return KindNone, nil
	}
	return KindNone, werr.Errorf(werr.ErrValidation, "unknown connector kind %q", s)
}

// Connector is the extension's request channel.
type Connector interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ProviderError is an error reported by the extension itself.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Classify maps a provider error to the connector errors of the taxonomy. All
// errors from a Connector should pass it before they reach callers.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, werr.ErrConnector) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case CodeUserRejected, CodeUnauthorized:
			return fmt.Errorf("%w: %s", werr.ErrUserRejected, pe.Message)
		case CodeDisconnected, CodeChainGone:
			return fmt.Errorf("%w: %s", werr.ErrProviderUnavailable, pe.Message)
		}
	}
	return werr.Wrap(werr.ErrConnector, err)
}

// Accounts asks the connector for the accounts it already exposes to us. It
// doesn't prompt the user.
func Accounts(ctx context.Context, c Connector) ([]string, error) {
	return accounts(ctx, c, MethodAccounts)
}

// RequestAccounts asks the user to connect. It's only called on explicit user
// initiated (re)connection.
func RequestAccounts(ctx context.Context, c Connector) ([]string, error) {
	return accounts(ctx, c, MethodRequestAccounts)
}

func accounts(ctx context.Context, c Connector, method string) (accs []string, err error) {
	if c == nil {
		return nil, werr.ErrProviderUnavailable
	}
	raw, err := c.Request(ctx, method)
	if err != nil {
		glog.V(1).Infoln("connector", method, "failed:", err)
		return nil, Classify(err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &accs); err != nil {
		return nil, werr.Wrap(werr.ErrConnector, err)
	}
	return accs, nil
}

// ValidateAddress checks that the address has the form the kind uses.
func ValidateAddress(kind Kind, addr string) error {
	switch kind {
	case KindExtensionA:
		if !common.IsHexAddress(addr) {
			return werr.Errorf(werr.ErrInvalidAddress, "%q is not a hex address", addr)
		}
	case KindExtensionB:
		b, err := base58.Decode(addr)
		if err != nil || len(b) != 32 {
			return werr.Errorf(werr.ErrInvalidAddress, "%q is not a base58 public key", addr)
		}
	default:
		return werr.Errorf(werr.ErrValidation, "cannot connect with kind %q", kind)
	}
	return nil
}
