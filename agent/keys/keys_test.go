package keys

import (
	"errors"
	"strings"
	"testing"

	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/lainio/err2/assert"
)

// well known development phrase and its first account
const (
	testPhrase  = "test test test test test test test test test test test junk"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

func TestDeriver_FromPhrase(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	p, err := Deriver{}.FromPhrase(testPhrase)
	assert.NoError(err)
	assert.Equal(p.Address, testAddress)
	assert.Equal(p.KeyMaterial, testKey)
	assert.Equal(p.RecoveryPhrase, testPhrase)

	p2, err := Deriver{}.FromPhrase("  TEST test test test test test test test test test test   junk ")
	assert.NoError(err)
	assert.Equal(p2.Address, testAddress)
}

func TestDeriver_FromPhrase_invalid(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
	}{
		{"empty", ""},
		{"bad checksum", "test test test test test test test test test test test test"},
		{"not a word", "test test test test test test test test test test test junkk"},
		{"too short", "test test test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()

			_, err := Deriver{}.FromPhrase(tt.phrase)
			assert.That(errors.Is(err, werr.ErrInvalidRecoveryPhrase))
			assert.That(errors.Is(err, werr.ErrValidation))
		})
	}
}

func TestDeriver_FromKeyMaterial(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"prefixed", testKey, true},
		{"plain", strings.TrimPrefix(testKey, "0x"), true},
		{"short", "0xac09", false},
		{"not hex", "0x" + strings.Repeat("zz", 32), false},
		{"zero key", "0x" + strings.Repeat("00", 32), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()

			p, err := Deriver{}.FromKeyMaterial(tt.raw)
			if !tt.ok {
				assert.That(errors.Is(err, werr.ErrInvalidKeyMaterial))
				return
			}
			assert.NoError(err)
			assert.Equal(p.Address, testAddress)
			assert.Equal(p.KeyMaterial, testKey)
			assert.Empty(p.RecoveryPhrase)
		})
	}
}

func TestDeriver_Generate(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	p, err := Deriver{}.Generate()
	assert.NoError(err)
	assert.That(IsAddress(p.Address))
	assert.Equal(len(strings.Fields(p.RecoveryPhrase)), 12)

	again, err := Deriver{}.FromPhrase(p.RecoveryPhrase)
	assert.NoError(err)
	assert.Equal(again.Address, p.Address)
	assert.Equal(again.KeyMaterial, p.KeyMaterial)

	other, err := Deriver{}.Generate()
	assert.NoError(err)
	assert.NotEqual(other.Address, p.Address)
}
