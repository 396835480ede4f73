/*
Package keys derives managed identities. It's a thin layer over go-ethereum's
secp256k1 keys, BIP39 recovery phrases and BIP32 derivation on the standard
Ethereum path m/44'/60'/0'/0/0. Nothing here stores or logs key material.
*/
package keys

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath is the derivation path of the first account.
const DefaultPath = "m/44'/60'/0'/0/0"

// entropyBits gives 12 word phrases.
const entropyBits = 128

// Pair is what the derivation produces. RecoveryPhrase is empty when the pair
// was imported from raw key material.
type Pair struct {
	Address        string
	KeyMaterial    string
	RecoveryPhrase string
}

// Deriver is the default key-derivation collaborator.
type Deriver struct {
	// Path overrides DefaultPath.
	Path string
}

// Generate creates a new recovery phrase from fresh entropy and derives the
// pair from it.
func (d Deriver) Generate() (p Pair, err error) {
	defer err2.Handle(&err, "generate identity")

	entropy := try.To1(bip39.NewEntropy(entropyBits))
	phrase := try.To1(bip39.NewMnemonic(entropy))
	return d.FromPhrase(phrase)
}

// FromPhrase derives the pair deterministically from the recovery phrase. It
// fails with ErrInvalidRecoveryPhrase if the words or the checksum are wrong.
func (d Deriver) FromPhrase(phrase string) (p Pair, err error) {
	phrase = NormalizePhrase(phrase)
	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return p, werr.ErrInvalidRecoveryPhrase
	}
	key, err := d.derive(seed)
	if err != nil {
		return p, err
	}
	p = pairOf(key)
	p.RecoveryPhrase = phrase
	return p, nil
}

// FromKeyMaterial accepts a 32 byte private key in hex, 0x prefix optional. It
// fails with ErrInvalidKeyMaterial if it's malformed.
func (d Deriver) FromKeyMaterial(raw string) (p Pair, err error) {
	key, err := ParseKey(raw)
	if err != nil {
		return p, err
	}
	return pairOf(key), nil
}

// ParseKey parses hex key material to a private key.
func ParseKey(raw string) (*ecdsa.PrivateKey, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(s) != 64 {
		return nil, werr.ErrInvalidKeyMaterial
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, werr.ErrInvalidKeyMaterial
	}
	return key, nil
}

// NormalizePhrase collapses whitespace and case so that a phrase typed by a
// user derives the same keys as the generated one.
func NormalizePhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// IsAddress reports whether s is a hex address of a managed identity.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

func (d Deriver) derive(seed []byte) (key *ecdsa.PrivateKey, err error) {
	defer err2.Handle(&err, "derive")

	path := d.Path
	if path == "" {
		path = DefaultPath
	}
	dp := try.To1(accounts.ParseDerivationPath(path))

	k := try.To1(bip32.NewMasterKey(seed))
	for _, n := range dp {
		k = try.To1(k.NewChildKey(n))
	}
	return crypto.ToECDSA(common.LeftPadBytes(k.Key, 32))
}

func pairOf(key *ecdsa.PrivateKey) Pair {
	return Pair{
		Address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		KeyMaterial: hexutil.Encode(crypto.FromECDSA(key)),
	}
}
