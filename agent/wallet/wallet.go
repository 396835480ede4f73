/*
Package wallet is the owned service object of one wallet session. It wires
the identity registry, the session coordinator, the persistence gateway and
the history engine together. Every call which mutates the registry or the
connected identity is persisted before it returns.

Create one Wallet per session with New and pass it to whoever needs it. Close
it on shutdown to flush and release the state file.
*/
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/findy-network/findy-wallet/agent/bus"
	"github.com/findy-network/findy-wallet/agent/connector"
	"github.com/findy-network/findy-wallet/agent/history"
	"github.com/findy-network/findy-wallet/agent/identity"
	"github.com/findy-network/findy-wallet/agent/session"
	"github.com/findy-network/findy-wallet/agent/storage"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Config of the wallet session.
type Config struct {
	Storage storage.Config

	// BackupAt is the daily backup time HH:MM, empty means no backups.
	BackupAt string

	// Keys derives managed identities, keys.Deriver if nil.
	Keys identity.Deriver

	// Indexer serves the history. If nil, history is always the fallback.
	Indexer history.Indexer
	History history.Config
}

// Wallet is the session service.
type Wallet struct {
	reg     *identity.Registry
	sess    *session.Coordinator
	store   *storage.Gateway
	hist    *history.Engine
	station *bus.Station

	// l serializes mutations and their saves so that the file always has
	// the latest state
	l sync.Mutex
}

// New opens the state file and restores the session from it. A corrupted
// state gives an empty wallet, never an error.
func New(cfg Config) (w *Wallet, err error) {
	defer err2.Handle(&err, "wallet")

	store := try.To1(storage.Open(cfg.Storage))
	defer err2.Handle(&err, func(err error) error {
		_ = store.Close()
		return err
	})
	if cfg.BackupAt != "" {
		try.To(store.StartBackup(cfg.BackupAt))
	}

	idx := cfg.Indexer
	if idx == nil {
		idx = noIndexer{}
	}
	station := bus.New()
	w = &Wallet{
		reg:     identity.New(cfg.Keys),
		sess:    session.New(station),
		store:   store,
		hist:    history.New(idx, cfg.History),
		station: station,
	}

	s := store.Load()
	w.reg.Restore(s.Registry)
	w.sess.Restore(s.Connected.Address, s.Connected.Kind)
	glog.V(1).Infof("wallet restored: %d identities, active: %q",
		w.reg.Len(), w.reg.ActiveAddress())
	return w, nil
}

// CreateIdentity generates a new identity. It isn't added to the wallet.
func (w *Wallet) CreateIdentity() (identity.Identity, error) {
	return w.reg.CreateIdentity()
}

// ImportPhrase derives the identity of the recovery phrase. It isn't added
// to the wallet.
func (w *Wallet) ImportPhrase(phrase string) (identity.Identity, error) {
	return w.reg.ImportPhrase(phrase)
}

// ImportKey derives the identity of the raw key material. It isn't added to
// the wallet.
func (w *Wallet) ImportKey(raw string) (identity.Identity, error) {
	return w.reg.ImportKey(raw)
}

// AddIdentity adds the identity and persists. If the persisting fails the
// identity stays added and the error is returned.
func (w *Wallet) AddIdentity(id identity.Identity, name string) error {
	w.l.Lock()
	defer w.l.Unlock()

	prev := w.reg.ActiveAddress()
	if err := w.reg.Add(id, name); err != nil {
		return err
	}
	return w.registryChanged(prev)
}

// RemoveIdentity removes the identity. It's a no-op if the address isn't
// present, and nothing is written then.
func (w *Wallet) RemoveIdentity(address string) (removed bool, err error) {
	w.l.Lock()
	defer w.l.Unlock()

	prev := w.reg.ActiveAddress()
	if !w.reg.Remove(address) {
		return false, nil
	}
	return true, w.registryChanged(prev)
}

// SetActive makes the managed identity active. The connected identity can
// never be made active this way since it isn't in the registry.
func (w *Wallet) SetActive(address string) error {
	w.l.Lock()
	defer w.l.Unlock()

	prev := w.reg.ActiveAddress()
	changed, err := w.reg.SetActive(address)
	if err != nil || !changed {
		return err
	}
	return w.registryChanged(prev)
}

// RenameIdentity sets the display name. It's a no-op if the address isn't
// present.
func (w *Wallet) RenameIdentity(address, name string) (renamed bool, err error) {
	w.l.Lock()
	defer w.l.Unlock()

	if !w.reg.Rename(address, name) {
		return false, nil
	}
	return true, w.registryChanged(w.reg.ActiveAddress())
}

// Identities returns the managed identities in order.
func (w *Wallet) Identities() []identity.Identity {
	return w.reg.Identities()
}

// Active returns the active managed identity.
func (w *Wallet) Active() (identity.Identity, bool) {
	return w.reg.Active()
}

// Identity returns the managed identity by its address.
func (w *Wallet) Identity(address string) (identity.Identity, bool) {
	return w.reg.Get(address)
}

// HandleEvent applies the connector event and persists if the connected
// identity changed.
func (w *Wallet) HandleEvent(ev session.Event) (changed bool, err error) {
	w.l.Lock()
	defer w.l.Unlock()

	changed, err = w.sess.Apply(ev)
	if err != nil || !changed {
		return changed, err
	}
	return true, w.persist()
}

// Revalidate asks the extension to confirm the restored connected identity.
func (w *Wallet) Revalidate(ctx context.Context, conn connector.Connector) (changed bool, err error) {
	changed, err = w.sess.Revalidate(ctx, conn)
	if err != nil || !changed {
		return changed, err
	}
	w.l.Lock()
	defer w.l.Unlock()
	return true, w.persist()
}

// Connected returns the connected identity.
func (w *Wallet) Connected() (session.Identity, bool) {
	return w.sess.Connected()
}

// History fetches the history of any address. It never fails, see
// history.Result for telling live records from the fallback.
func (w *Wallet) History(ctx context.Context, address string) history.Result {
	return w.hist.Fetch(ctx, address)
}

// HistoryState tells if a history fetch of the address is running.
func (w *Wallet) HistoryState(address string) history.State {
	return w.hist.State(address)
}

// Relevant tells if a result for the address should still be shown: it's
// the active managed identity or the connected one.
func (w *Wallet) Relevant(address string) bool {
	if address == "" {
		return false
	}
	if address == w.reg.ActiveAddress() {
		return true
	}
	c, ok := w.sess.Connected()
	return ok && c.Address == address
}

// ActiveHistory fetches the history of the active managed identity. ok is
// false if there is no active identity, or if a different identity became
// active before the result arrived. The result must be dropped then.
func (w *Wallet) ActiveHistory(ctx context.Context) (r history.Result, ok bool) {
	address := w.reg.ActiveAddress()
	if address == "" {
		return r, false
	}
	r = w.hist.Fetch(ctx, address)
	if w.reg.ActiveAddress() != address {
		glog.V(2).Infoln("discarding stale history of", address)
		return r, false
	}
	return r, true
}

// Listen registers a listener for the wallet notifications.
func (w *Wallet) Listen(id string) bus.NotifyChan {
	return w.station.AddListener(id)
}

// Unlisten removes the listener and closes its channel.
func (w *Wallet) Unlisten(id string) {
	w.station.RmListener(id)
}

// Backup copies the state file now.
func (w *Wallet) Backup() (string, error) {
	return w.store.Backup()
}

// Close saves the state one more time and closes the state file.
func (w *Wallet) Close() (err error) {
	defer err2.Handle(&err, "wallet close")

	w.l.Lock()
	defer w.l.Unlock()

	if perr := w.persist(); perr != nil {
		glog.Warningln("final save:", perr)
	}
	try.To(w.store.Close())
	return nil
}

func (w *Wallet) registryChanged(prevActive string) error {
	w.station.Broadcast(bus.NewNotify(bus.IdentitiesChanged, ""))
	if a := w.reg.ActiveAddress(); a != prevActive {
		w.station.Broadcast(bus.NewNotify(bus.ActiveChanged, a))
	}
	return w.persist()
}

// persist saves the current state. The caller holds the lock.
func (w *Wallet) persist() error {
	c, _ := w.sess.Connected()
	err := w.store.Save(storage.State{
		Registry:  w.reg.Snapshot(),
		Connected: c,
	})
	if err != nil {
		glog.Errorln("wallet state NOT saved:", err)
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// noIndexer has no records, which gives the fallback right away.
type noIndexer struct{}

func (noIndexer) Transfers(context.Context, string) ([]history.Record, error) {
	return nil, nil
}
