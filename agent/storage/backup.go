package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	bolt "go.etcd.io/bbolt"
)

// Backup copies the database to the backup directory inside a read
// transaction and returns the name of the copy. The copy is sealed the same
// way as the original.
func (g *Gateway) Backup() (name string, err error) {
	defer err2.Handle(&err, "storage backup")

	g.l.Lock()
	defer g.l.Unlock()

	if g.db == nil {
		return "", errors.New("storage closed")
	}
	dir := g.cfg.BackupDir
	if dir == "" {
		dir = filepath.Dir(g.cfg.Filename)
	}
	base := strings.TrimSuffix(filepath.Base(g.cfg.Filename), filepath.Ext(g.cfg.Filename))
	name = filepath.Join(dir, fmt.Sprintf("%s_%s_%s.bolt", base,
		time.Now().UTC().Format("20060102T150405"), utils.UUID()[:8]))

	try.To(g.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(name, 0600)
	}))
	glog.V(1).Infoln("wallet state backup:", name)
	return name, nil
}

// StartBackup schedules a daily Backup at the time given as HH:MM in local
// time. Close stops it.
func (g *Gateway) StartBackup(at string) (err error) {
	defer err2.Handle(&err, "start backup")

	g.l.Lock()
	defer g.l.Unlock()

	if g.cron != nil {
		return errors.New("backup already scheduled")
	}
	cron := gocron.NewScheduler(time.Now().Location())
	try.To1(cron.Every(1).Day().At(at).Do(func() {
		if _, err := g.Backup(); err != nil {
			glog.Warningln("scheduled backup error:", err)
		}
	}))
	cron.StartAsync()
	g.cron = cron

	glog.V(1).Infoln("wallet state backup time:", at)
	return nil
}
