/*
Package storage is the persistence gateway of the wallet. The whole state is
one JSON record in a bbolt file, sealed with AES-GCM when a key is configured.
Save writes the record synchronously. Load never fails: a record which cannot
be read is moved aside to the corrupt bucket and the wallet starts empty.
*/
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/findy-network/findy-common-go/crypto"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	bolt "go.etcd.io/bbolt"
)

var (
	stateBucket   = []byte("wallet")
	corruptBucket = []byte("corrupt")
	recordKey     = []byte("state")
)

// openTimeout is how long Open waits for the file lock of another process.
const openTimeout = time.Second

// Config tells where and how the state is stored.
type Config struct {
	Filename string

	// Key is a hex encoded 32 byte AES key. Empty means the state is stored
	// plain.
	Key string

	// BackupDir is where Backup writes its copies, the directory of Filename
	// if empty.
	BackupDir string
}

// Gateway reads and writes the wallet state.
type Gateway struct {
	cfg    Config
	db     *bolt.DB
	cipher *crypto.Cipher
	cron   *gocron.Scheduler

	l sync.Mutex
}

// Open opens or creates the state file. A file bbolt cannot use, whether it
// isn't a database at all or its pages are damaged, is renamed aside and a
// fresh one is created. Only a lock timeout or missing permissions fail.
func Open(cfg Config) (g *Gateway, err error) {
	defer err2.Handle(&err, "storage open")

	g = &Gateway{cfg: cfg}
	if cfg.Key != "" {
		k := try.To1(hex.DecodeString(cfg.Key))
		if len(k) != 32 {
			return nil, fmt.Errorf("%w: state key must be 32 bytes",
				werr.ErrValidation)
		}
		g.cipher = crypto.NewCipher(k)
	} else {
		glog.Warningln("state key not set, storing wallet state PLAIN")
	}

	g.db, err = attach(cfg.Filename)
	if isCorruptFile(err) {
		try.To(moveAside(cfg.Filename, err))
		g.db, err = attach(cfg.Filename)
	}
	try.To(err)
	glog.V(1).Infoln("wallet state opened:", cfg.Filename)
	return g, nil
}

// attach opens the bbolt file and makes sure the buckets exist. A damaged
// file can make bbolt panic, which is returned as ErrStorageCorrupted. The
// file is closed if anything fails after it was opened.
func attach(filename string) (db *bolt.DB, err error) {
	err = guard(func() (err error) {
		db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: openTimeout})
		if err != nil {
			return err
		}
		return db.Update(func(tx *bolt.Tx) (err error) {
			defer err2.Handle(&err, "create buckets")

			try.To1(tx.CreateBucketIfNotExists(stateBucket))
			try.To1(tx.CreateBucketIfNotExists(corruptBucket))
			return nil
		})
	})
	if err != nil && db != nil {
		_ = guard(db.Close)
		db = nil
	}
	return db, err
}

// guard runs f and converts a panic from bbolt reading damaged pages to
// ErrStorageCorrupted. Faults on the memory mapped file panic too while f
// runs.
func guard(f func() error) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", werr.ErrStorageCorrupted, r)
		}
	}()
	return f()
}

// isCorruptFile tells if the open error means the file content is unusable.
// A lock held by another process or missing permissions are not about the
// content, and the file must be left alone then.
func isCorruptFile(err error) bool {
	return err != nil &&
		!errors.Is(err, bolt.ErrTimeout) &&
		!errors.Is(err, fs.ErrPermission) &&
		!errors.Is(err, fs.ErrNotExist) &&
		!errors.Is(err, bolt.ErrDatabaseReadOnly)
}

// moveAside renames the unusable state file so that a fresh one can be
// created without destroying it.
func moveAside(filename string, cause error) error {
	aside := fmt.Sprintf("%s.corrupt-%d", filename, time.Now().UnixNano())
	glog.Warningf("state file %s unreadable (%v), moving it to %s",
		filename, cause, aside)
	return os.Rename(filename, aside)
}

// reset replaces a damaged state file with a fresh one. The caller holds the
// lock.
func (g *Gateway) reset(cause error) (err error) {
	defer err2.Handle(&err, "storage reset")

	if g.db != nil {
		_ = guard(g.db.Close)
		g.db = nil
	}
	try.To(moveAside(g.cfg.Filename, cause))
	g.db = try.To1(attach(g.cfg.Filename))
	return nil
}

// Save writes the state. It's called after every mutation, and when it
// returns nil the state is on disk.
func (g *Gateway) Save(s State) (err error) {
	defer err2.Handle(&err, "storage save")

	data := try.To1(s.marshal())

	g.l.Lock()
	defer g.l.Unlock()

	if g.db == nil {
		return errors.New("storage closed")
	}
	sealed := g.seal(data)
	put := func() error {
		return g.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(stateBucket).Put(recordKey, sealed)
		})
	}
	if err = guard(put); errors.Is(err, werr.ErrStorageCorrupted) {
		glog.Errorln("state file damaged on save:", err)
		try.To(g.reset(err))
		err = guard(put)
	}
	try.To(err)
	glog.V(5).Infoln("wallet state saved, identities:", len(s.Registry.Identities))
	return nil
}

// Load reads the state. A missing record gives the empty state. A record
// which cannot be decrypted or decoded is logged, quarantined and the empty
// state is returned.
func (g *Gateway) Load() State {
	g.l.Lock()
	defer g.l.Unlock()

	if g.db == nil {
		glog.Errorln("load from closed storage")
		return State{}
	}

	var raw []byte
	err := guard(func() error {
		return g.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(stateBucket).Get(recordKey); v != nil {
				raw = append(v[:0:0], v...)
			}
			return nil
		})
	})
	if errors.Is(err, werr.ErrStorageCorrupted) {
		glog.Warningln("state file damaged, starting empty:", err)
		if err := g.reset(err); err != nil {
			glog.Errorln("cannot replace damaged state file:", err)
		}
		return State{}
	}
	if err != nil {
		glog.Errorln("cannot read wallet state:", err)
		return State{}
	}
	if raw == nil {
		glog.V(2).Infoln("no stored wallet state, starting empty")
		return State{}
	}

	s, err := g.decode(raw)
	if err != nil {
		glog.Warningln("wallet state corrupted, starting empty:", err)
		g.quarantine(raw)
		return State{}
	}
	return s
}

func (g *Gateway) decode(raw []byte) (s State, err error) {
	data, err := g.open(raw)
	if err != nil {
		return s, err
	}
	return unmarshal(data)
}

// quarantine moves the unreadable record to the corrupt bucket so that the
// next Save doesn't silently destroy it. The caller holds the lock.
func (g *Gateway) quarantine(raw []byte) {
	key := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	err := guard(func() error {
		return g.db.Update(func(tx *bolt.Tx) (err error) {
			defer err2.Handle(&err)

			try.To(tx.Bucket(corruptBucket).Put(key, raw))
			try.To(tx.Bucket(stateBucket).Delete(recordKey))
			return nil
		})
	})
	if err != nil {
		glog.Errorln("cannot quarantine corrupted state:", err)
		return
	}
	glog.V(1).Infof("corrupted state moved to bucket %s key %s", corruptBucket, key)
}

// Quarantined returns the amount of corrupted records moved aside.
func (g *Gateway) Quarantined() (n int) {
	g.l.Lock()
	defer g.l.Unlock()

	if g.db == nil {
		return 0
	}
	_ = guard(func() error {
		return g.db.View(func(tx *bolt.Tx) error {
			n = tx.Bucket(corruptBucket).Stats().KeyN
			return nil
		})
	})
	return n
}

// Close stops the backup scheduler and closes the file. It's safe to call
// more than once.
func (g *Gateway) Close() (err error) {
	defer err2.Handle(&err, "storage close")

	g.l.Lock()
	defer g.l.Unlock()

	if g.cron != nil {
		g.cron.Stop()
		g.cron = nil
	}
	if g.db == nil {
		return nil
	}
	try.To(g.db.Close())
	g.db = nil
	return nil
}

func (g *Gateway) seal(data []byte) []byte {
	if g.cipher == nil {
		return data
	}
	return g.cipher.TryEncrypt(data)
}

// open reverses seal. The cipher panics on bad input, which is converted to
// ErrStorageCorrupted here.
func (g *Gateway) open(data []byte) (out []byte, err error) {
	if g.cipher == nil {
		return data, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: decrypt: %v", werr.ErrStorageCorrupted, r)
		}
	}()
	return g.cipher.TryDecrypt(data), nil
}
