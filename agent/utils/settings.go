package utils

import (
	"time"

	"github.com/golang/glog"
)

const (
	// HistoryAttempts is how many times history retrieval calls the indexer
	// before it gives up and serves the fallback dataset.
	HistoryAttempts = 3

	// HistoryDelay is the fixed delay between history attempts.
	HistoryDelay = 2 * time.Second

	// RPCTimeout is the default timeout for ledger and indexer calls.
	RPCTimeout = 30 * time.Second
)

var Settings = &Hub{}

type Hub struct {
	statePath string // bbolt file where the wallet state is persisted
	stateKey  string // hex AES key to seal the state, empty means plain
	backupDir string // directory for scheduled state backups

	rpcURL     string // ledger node JSON-RPC endpoint
	indexerURL string // history indexer endpoint, rpcURL if empty

	historyAttempts int
	historyDelay    time.Duration
	timeout         time.Duration
}

func (h *Hub) StatePath() string {
	if h.statePath == "" {
		return DefaultStatePath()
	}
	return h.statePath
}

func (h *Hub) SetStatePath(path string) {
	h.statePath = path
}

func (h *Hub) StateKey() string {
	return h.stateKey
}

// SetStateKey sets the hex encoded 32 byte key used to seal the state file.
func (h *Hub) SetStateKey(key string) {
	h.stateKey = key
}

func (h *Hub) BackupDir() string {
	return h.backupDir
}

func (h *Hub) SetBackupDir(dir string) {
	h.backupDir = dir
}

func (h *Hub) RPCURL() string {
	if h.rpcURL == "" && glog.V(3) {
		glog.Info("warning rpc url is empty")
	}
	return h.rpcURL
}

func (h *Hub) SetRPCURL(url string) {
	h.rpcURL = url
}

// IndexerURL returns the history indexer endpoint. Alchemy style nodes serve
// both, so the RPC URL is used when no own indexer is set.
func (h *Hub) IndexerURL() string {
	if h.indexerURL == "" {
		return h.rpcURL
	}
	return h.indexerURL
}

func (h *Hub) SetIndexerURL(url string) {
	h.indexerURL = url
}

func (h *Hub) HistoryAttempts() int {
	if h.historyAttempts <= 0 {
		return HistoryAttempts
	}
	return h.historyAttempts
}

func (h *Hub) SetHistoryAttempts(n int) {
	h.historyAttempts = n
}

func (h *Hub) HistoryDelay() time.Duration {
	if h.historyDelay <= 0 {
		return HistoryDelay
	}
	return h.historyDelay
}

func (h *Hub) SetHistoryDelay(d time.Duration) {
	h.historyDelay = d
}

// SetTimeout sets the default timeout for ledger and indexer calls.
func (h *Hub) SetTimeout(to time.Duration) {
	h.timeout = to
}

func (h *Hub) Timeout() time.Duration {
	if h.timeout == 0 {
		return RPCTimeout
	}
	return h.timeout
}
