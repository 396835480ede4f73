/*
Package history retrieves the transfer history of an address. The remote
indexer is unreliable, so Engine.Fetch calls it a bounded number of times with
a fixed delay between the attempts. If every attempt fails, or the indexer has
no records, the fixed demo dataset is served instead. Fetch never fails: the
Result tells whether its records are live or the fallback, and why.

	Idle -> Fetching -> SuccessNonEmpty                 -> Idle
	                 -> SuccessEmpty     -> Fallback    -> Idle
	                 -> RetriesExhausted -> Fallback    -> Idle

Overlapping fetches of the same address share one round of attempts. A
caller which stops waiting doesn't stop the round for the others.
*/
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/sync/singleflight"
)

// Source tells where the records of a Result come from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// State of the fetch for an address.
type State uint

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Fetching:
		return "Fetching"
	default:
		return "Unknown State"
	}
}

// Outcome is how a fetch ended.
type Outcome uint

const (
	SuccessNonEmpty Outcome = 1 + iota
	SuccessEmpty
	RetriesExhausted
	Rejected // the indexer refused the address, not retried
	Stopped  // the context ended before the attempts did
)

func (o Outcome) String() string {
	switch o {
	case SuccessNonEmpty:
		return "SuccessNonEmpty"
	case SuccessEmpty:
		return "SuccessEmpty"
	case RetriesExhausted:
		return "RetriesExhausted"
	case Rejected:
		return "Rejected"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown Outcome"
	}
}

// Result is what Fetch returns. Records are never empty. Reason is set for
// fallback results.
type Result struct {
	Address  string
	Source   Source
	Outcome  Outcome
	Records  []Record
	Attempts int
	Reason   string
}

// IsFallback tells if the records are the demo dataset.
func (r Result) IsFallback() bool {
	return r.Source == SourceFallback
}

// Config is the retry policy. The zero values are replaced with the defaults
// of utils.Settings and the wall clock.
type Config struct {
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock

	// Timeout bounds one shared fetch with all of its attempts.
	Timeout time.Duration
}

// Engine fetches histories from the indexer.
type Engine struct {
	idx Indexer
	cfg Config

	group    singleflight.Group
	fetching map[string]int
	flights  map[string]*flight
	l        sync.Mutex
}

// flight is the context of the shared fetch of an address. It's cancelled
// when the last caller waiting for it leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// errAbandoned tells that every caller left and the fetch was cancelled.
var errAbandoned = errors.New("history fetch abandoned")

// New creates an engine for the indexer.
func New(idx Indexer, cfg Config) *Engine {
	if cfg.Attempts <= 0 {
		cfg.Attempts = utils.Settings.HistoryAttempts()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = utils.Settings.HistoryDelay()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = utils.Settings.Timeout()
	}
	return &Engine{
		idx:      idx,
		cfg:      cfg,
		fetching: make(map[string]int),
		flights:  make(map[string]*flight),
	}
}

// State returns the fetch state of the address.
func (e *Engine) State(address string) State {
	e.l.Lock()
	defer e.l.Unlock()

	if e.fetching[address] > 0 {
		return Fetching
	}
	return Idle
}

// Fetch returns the history of the address. If a fetch of the same address is
// already running, Fetch waits for it and returns its result. The shared
// fetch doesn't run on the callers' contexts: a caller whose ctx ends gets a
// Stopped fallback result right away and the others keep waiting. The fetch
// is cancelled when no one waits for it anymore.
func (e *Engine) Fetch(ctx context.Context, address string) Result {
	fctx := e.join(address)
	defer e.leave(address)

	for {
		ch := e.group.DoChan(address, func() (any, error) {
			r := e.fetch(fctx, address)
			if r.Outcome == Stopped && errors.Is(fctx.Err(), context.Canceled) {
				return r, errAbandoned
			}
			return r, nil
		})
		select {
		case res := <-ch:
			if res.Err != nil && ctx.Err() == nil {
				// joined a fetch which its own callers abandoned
				glog.V(3).Infoln("history fetch abandoned, fetching again", address)
				continue
			}
			r := res.Val.(Result)
			if res.Shared {
				glog.V(3).Infoln("history fetch shared for", address)
			}
			r.Records = append(r.Records[:0:0], r.Records...)
			return r
		case <-ctx.Done():
			return fallback(address, Stopped, 0, "caller stopped waiting: "+ctx.Err().Error())
		}
	}
}

func (e *Engine) join(address string) context.Context {
	e.l.Lock()
	defer e.l.Unlock()

	f := e.flights[address]
	if f == nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
		f = &flight{ctx: ctx, cancel: cancel}
		e.flights[address] = f
	}
	f.waiters++
	return f.ctx
}

func (e *Engine) leave(address string) {
	e.l.Lock()
	defer e.l.Unlock()

	f := e.flights[address]
	if f == nil {
		return
	}
	if f.waiters--; f.waiters == 0 {
		f.cancel()
		delete(e.flights, address)
	}
}

func (e *Engine) fetch(ctx context.Context, address string) (r Result) {
	e.setFetching(address, 1)
	defer e.setFetching(address, -1)

	r.Address = address
	var records []Record
	err := retry.Call(retry.CallArgs{
		Func: func() (err error) {
			r.Attempts++
			records, err = e.idx.Transfers(ctx, address)
			return err
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, werr.ErrValidation)
		},
		NotifyFunc: func(lastErr error, attempt int) {
			glog.V(1).Infof("history attempt %d/%d for %s failed: %v",
				attempt, e.cfg.Attempts, address, lastErr)
		},
		Attempts: e.cfg.Attempts,
		Delay:    e.cfg.Delay,
		Clock:    e.cfg.Clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil && len(records) > 0:
		r.Source = SourceLive
		r.Outcome = SuccessNonEmpty
		r.Records = records
		glog.V(2).Infof("history for %s: %d records", address, len(records))
		return r
	case err == nil:
		r.Outcome = SuccessEmpty
		r.Reason = "indexer returned no records"
	case retry.IsAttemptsExceeded(err):
		r.Outcome = RetriesExhausted
		r.Reason = fmt.Sprintf("%d attempts failed: %v", r.Attempts, retry.LastError(err))
	case retry.IsRetryStopped(err):
		r.Outcome = Stopped
		r.Reason = fmt.Sprintf("stopped after %d attempts: %v", r.Attempts, retry.LastError(err))
	case errors.Is(err, werr.ErrValidation):
		r.Outcome = Rejected
		r.Reason = err.Error()
	default:
		r.Outcome = RetriesExhausted
		r.Reason = err.Error()
	}
	return fallback(address, r.Outcome, r.Attempts, r.Reason)
}

func fallback(address string, o Outcome, attempts int, reason string) Result {
	glog.Warningf("serving fallback history for %s (%s): %s", address, o, reason)
	return Result{
		Address:  address,
		Source:   SourceFallback,
		Outcome:  o,
		Records:  Fallback(),
		Attempts: attempts,
		Reason:   reason,
	}
}

func (e *Engine) setFetching(address string, delta int) {
	e.l.Lock()
	defer e.l.Unlock()

	if n := e.fetching[address] + delta; n > 0 {
		e.fetching[address] = n
	} else {
		delete(e.fetching, address)
	}
}
