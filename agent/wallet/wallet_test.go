package wallet

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/findy-network/findy-wallet/agent/bus"
	"github.com/findy-network/findy-wallet/agent/connector"
	"github.com/findy-network/findy-wallet/agent/history"
	"github.com/findy-network/findy-wallet/agent/identity"
	"github.com/findy-network/findy-wallet/agent/keys"
	"github.com/findy-network/findy-wallet/agent/session"
	"github.com/findy-network/findy-wallet/agent/storage"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/juju/clock/testclock"
	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
)

const (
	testPhrase = "test test test test test test test test test test test junk"
	testAddr   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	connAddr   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	stateKey   = "15308490f1e4026284594dd08d31291bc8ef2aeac730d0daf6ff87bb92d4336c"
)

var testDir string

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	tearDown()
	os.Exit(code)
}

func setUp() {
	try.To(flag.Set("logtostderr", "true"))
	try.To(flag.Set("stderrthreshold", "WARNING"))
	flag.Parse()

	testDir = try.To1(os.MkdirTemp("", "findy-wallet"))
}

func tearDown() {
	os.RemoveAll(testDir)
}

// seqKeys hands out the fixed addresses in order.
type seqKeys struct {
	addrs []string
}

func (s *seqKeys) Generate() (keys.Pair, error) {
	if len(s.addrs) == 0 {
		return keys.Pair{}, errors.New("out of addresses")
	}
	a := s.addrs[0]
	s.addrs = s.addrs[1:]
	return keys.Pair{Address: a, KeyMaterial: "key-" + a}, nil
}

func (s *seqKeys) FromPhrase(string) (keys.Pair, error) {
	return keys.Pair{}, werr.ErrInvalidRecoveryPhrase
}

func (s *seqKeys) FromKeyMaterial(string) (keys.Pair, error) {
	return keys.Pair{}, werr.ErrInvalidKeyMaterial
}

type indexerFunc func(ctx context.Context, address string) ([]history.Record, error)

func (f indexerFunc) Transfers(ctx context.Context, address string) ([]history.Record, error) {
	return f(ctx, address)
}

func config(t *testing.T, name string) Config {
	return Config{
		Storage: storage.Config{
			Filename: filepath.Join(testDir, name),
			Key:      stateKey,
		},
		History: history.Config{
			Attempts: 3,
			Delay:    2 * time.Second,
			Clock:    testclock.NewDilatedWallClock(time.Millisecond),
		},
	}
}

func open(t *testing.T, cfg Config) *Wallet {
	w, err := New(cfg)
	assert.NoError(err)
	return w
}

func TestScenario_createAddRemovePersisted(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "scenario.bolt")
	cfg.Keys = &seqKeys{addrs: []string{"0xAAA", "0xBBB"}}
	w := open(t, cfg)

	i1, err := w.CreateIdentity()
	assert.NoError(err)
	assert.Equal(i1.Address, "0xAAA")
	assert.NoError(w.AddIdentity(i1, "first"))
	act, _ := w.Active()
	assert.Equal(act.Address, "0xAAA")

	i2, err := w.CreateIdentity()
	assert.NoError(err)
	assert.NoError(w.AddIdentity(i2, ""))
	act, _ = w.Active()
	assert.Equal(act.Address, "0xAAA")

	removed, err := w.RemoveIdentity("0xAAA")
	assert.NoError(err)
	assert.That(removed)
	act, _ = w.Active()
	assert.Equal(act.Address, "0xBBB")
	assert.NoError(w.Close())

	w = open(t, cfg)
	defer w.Close()
	ids := w.Identities()
	assert.Equal(len(ids), 1)
	assert.Equal(ids[0].Address, "0xBBB")
	assert.Equal(ids[0].KeyMaterial, "key-0xBBB")
	act, ok := w.Active()
	assert.That(ok)
	assert.Equal(act.Address, "0xBBB")
}

func TestWallet_importAndReopen(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "import.bolt")
	w := open(t, cfg)

	_, err := w.ImportPhrase("test test test")
	assert.That(errors.Is(err, werr.ErrInvalidRecoveryPhrase))
	_, err = w.ImportKey("0x1234")
	assert.That(errors.Is(err, werr.ErrInvalidKeyMaterial))

	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)
	assert.Equal(id.Address, testAddr)
	assert.NoError(w.AddIdentity(id, "hardhat"))

	fresh, err := w.CreateIdentity()
	assert.NoError(err)
	assert.That(fresh.HasPhrase())
	assert.NoError(w.AddIdentity(fresh, ""))
	assert.NoError(w.SetActive(fresh.Address))
	assert.That(errors.Is(w.SetActive("0x0000000000000000000000000000000000000001"), werr.ErrUnknownIdentity))

	renamed, err := w.RenameIdentity(testAddr, "renamed")
	assert.NoError(err)
	assert.That(renamed)
	renamed, err = w.RenameIdentity("0xnobody", "x")
	assert.NoError(err)
	assert.That(!renamed)
	assert.NoError(w.Close())

	w = open(t, cfg)
	defer w.Close()
	got, ok := w.Identity(testAddr)
	assert.That(ok)
	assert.Equal(got.Name, "renamed")
	assert.Equal(got.RecoveryPhrase, testPhrase)
	act, _ := w.Active()
	assert.Equal(act.Address, fresh.Address)
}

func TestWallet_connectedPersistedNotLive(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "connected.bolt")
	w := open(t, cfg)

	changed, err := w.HandleEvent(session.Event{Seq: 1, Type: session.Connected,
		Address: connAddr, Kind: connector.KindExtensionA})
	assert.NoError(err)
	assert.That(changed)
	c, ok := w.Connected()
	assert.That(ok && c.Live)

	// the connected identity never becomes the active managed identity
	_, ok = w.Active()
	assert.That(!ok)
	assert.That(errors.Is(w.SetActive(connAddr), werr.ErrUnknownIdentity))
	assert.NoError(w.Close())

	w = open(t, cfg)
	defer w.Close()
	c, ok = w.Connected()
	assert.That(ok)
	assert.Equal(c.Address, connAddr)
	assert.Equal(c.Kind, connector.KindExtensionA)
	assert.That(!c.Live)

	changed, err = w.HandleEvent(session.Event{Seq: 1, Type: session.Disconnected})
	assert.NoError(err)
	assert.That(changed)
	_, ok = w.Connected()
	assert.That(!ok)
}

func TestWallet_corruptedStateStartsEmpty(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "corrupted.bolt")
	w := open(t, cfg)
	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)
	assert.NoError(w.AddIdentity(id, ""))
	assert.NoError(w.Close())

	// the same file with another key cannot be read
	cfg.Storage.Key = "25308490f1e4026284594dd08d31291bc8ef2aeac730d0daf6ff87bb92d4336c"
	w = open(t, cfg)
	defer w.Close()
	assert.Equal(len(w.Identities()), 0)
	_, ok := w.Active()
	assert.That(!ok)
}

func TestWallet_damagedStateFileStartsEmpty(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "damaged.bolt")
	w := open(t, cfg)
	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)
	assert.NoError(w.AddIdentity(id, ""))
	assert.NoError(w.Close())

	// everything after the meta pages is overwritten
	f, err := os.OpenFile(cfg.Storage.Filename, os.O_RDWR, 0600)
	assert.NoError(err)
	fi, err := f.Stat()
	assert.NoError(err)
	from := int64(2 * os.Getpagesize())
	_, err = f.WriteAt(bytes.Repeat([]byte{0xFF}, int(fi.Size()-from)), from)
	assert.NoError(err)
	assert.NoError(f.Close())

	w = open(t, cfg)
	defer w.Close()
	assert.Equal(len(w.Identities()), 0)
	_, ok := w.Active()
	assert.That(!ok)

	// the fresh file works
	assert.NoError(w.AddIdentity(id, ""))
	assert.Equal(len(w.Identities()), 1)
}

func TestWallet_persistFailureKeepsMutation(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "persistfail.bolt")
	w := open(t, cfg)
	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)

	assert.NoError(w.store.Close())
	err = w.AddIdentity(id, "")
	assert.Error(err)
	assert.Equal(len(w.Identities()), 1)
	assert.NoError(w.Close())
}

func TestWallet_removeAbsentDoesNotWrite(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	w := open(t, config(t, "noop.bolt"))
	assert.NoError(w.store.Close())

	// a closed store would fail any write
	removed, err := w.RemoveIdentity("0xAAA")
	assert.NoError(err)
	assert.That(!removed)
	renamed, err := w.RenameIdentity("0xAAA", "x")
	assert.NoError(err)
	assert.That(!renamed)
	changed, err := w.HandleEvent(session.Event{Seq: 1, Type: session.Disconnected})
	assert.NoError(err)
	assert.That(!changed)
}

func TestWallet_ActiveHistory(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "history.bolt")
	var w *Wallet
	var other identity.Identity
	cfg.Indexer = indexerFunc(func(_ context.Context, address string) ([]history.Record, error) {
		if address == testAddr {
			// the user switches the wallet while the fetch is on its way
			assert.NoError(w.SetActive(other.Address))
		}
		return []history.Record{{Hash: "0x1", From: address}}, nil
	})
	w = open(t, cfg)
	defer w.Close()

	_, ok := w.ActiveHistory(context.Background())
	assert.That(!ok)

	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)
	assert.NoError(w.AddIdentity(id, ""))
	other, err = w.CreateIdentity()
	assert.NoError(err)
	assert.NoError(w.AddIdentity(other, ""))

	r, ok := w.ActiveHistory(context.Background())
	assert.That(!ok)
	assert.Equal(r.Address, testAddr)
	assert.That(!w.Relevant(testAddr))

	r, ok = w.ActiveHistory(context.Background())
	assert.That(ok)
	assert.Equal(r.Source, history.SourceLive)
	assert.Equal(r.Records[0].From, other.Address)
	assert.That(w.Relevant(other.Address))
	assert.Equal(w.HistoryState(other.Address), history.Idle)
}

func TestWallet_HistoryWithoutIndexer(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	w := open(t, config(t, "noindexer.bolt"))
	defer w.Close()

	r := w.History(context.Background(), testAddr)
	assert.That(r.IsFallback())
	assert.Equal(r.Outcome, history.SuccessEmpty)
	assert.DeepEqual(r.Records, history.Fallback())
}

func TestWallet_notifications(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	w := open(t, config(t, "notify.bolt"))
	defer w.Close()
	ch := w.Listen("ui")
	defer w.Unlisten("ui")

	id, err := w.ImportPhrase(testPhrase)
	assert.NoError(err)
	assert.NoError(w.AddIdentity(id, ""))

	n := <-ch
	assert.Equal(n.Type, bus.IdentitiesChanged)
	n = <-ch
	assert.Equal(n.Type, bus.ActiveChanged)
	assert.Equal(n.Address, testAddr)

	_, err = w.HandleEvent(session.Event{Seq: 1, Type: session.Connected,
		Address: connAddr, Kind: connector.KindExtensionA})
	assert.NoError(err)
	n = <-ch
	assert.Equal(n.Type, bus.SessionChanged)
	assert.Equal(n.Address, connAddr)
}

func TestWallet_BackupAndBadConfig(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	cfg := config(t, "backup.bolt")
	cfg.BackupAt = "02:00"
	w := open(t, cfg)
	name, err := w.Backup()
	assert.NoError(err)
	_, err = os.Stat(name)
	assert.NoError(err)
	assert.NoError(w.Close())

	cfg = config(t, "badbackup.bolt")
	cfg.BackupAt = "25:99"
	_, err = New(cfg)
	assert.Error(err)
}
