// Package regmint issues globally unique, time-ordered identifiers for rows
// spread across heterogeneous tables, records every issuance in a central
// registry, and backfills identifiers for rows or composite-key groups that
// predate tracking.
package regmint

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/regmint/regmint/uid"
	"github.com/regmint/regmint/utils"
)

// MaxBatch bounds one allocation/assignment round to keep the transaction
// and its lock footprint small; backfill loops instead of growing batches.
const MaxBatch = 1000

const defaultAllocRetries = 5
const defaultRecentCache = 1 << 16
const defaultSinkQueueLimit = 1 << 20

type Options struct {
	Logger          utils.Logger
	MaxBatch        int
	MaxAllocRetries int
	RecentCacheSize int
	SinkQueueLimit  int

	Options            pebble.Options
	PebbleWriteOptions *pebble.WriteOptions
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.MaxBatch == 0 {
		o.MaxBatch = MaxBatch
	}
	if o.MaxAllocRetries == 0 {
		o.MaxAllocRetries = defaultAllocRetries
	}
	if o.RecentCacheSize == 0 {
		o.RecentCacheSize = defaultRecentCache
	}
	if o.SinkQueueLimit == 0 {
		o.SinkQueueLimit = defaultSinkQueueLimit
	}
	if o.PebbleWriteOptions == nil {
		o.PebbleWriteOptions = pebble.Sync
	}
}

// ReadWriter is the slice of pebble the registry needs to take part in the
// caller's transaction. Both *pebble.DB and an indexed *pebble.Batch
// satisfy it.
type ReadWriter interface {
	pebble.Reader
	pebble.Writer
}

// Engine owns the database and the identifier machinery. One Engine is safe
// for concurrent callers; backfill invocations on the same table are
// serialized in-process.
type Engine struct {
	db  *pebble.DB
	dir string

	opts  Options
	log   utils.Logger
	gen   *uid.Generator
	reg   Registry
	alloc *Allocator

	locks *xsync.MapOf[string, *sync.Mutex]

	outq    map[string]toyqueue.DrainCloser
	outlock sync.Mutex
}

// Open opens (or creates) a database directory and returns a ready engine.
func Open(dir string, opts Options) (*Engine, error) {
	opts.SetDefaults()

	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrap(err, "regmint: open")
	}

	recent, _ := lru.New[uid.UID, struct{}](opts.RecentCacheSize)
	gen := &uid.Generator{}
	reg := NewRegistry(opts.PebbleWriteOptions)

	e := &Engine{
		db:    db,
		dir:   dir,
		opts:  opts,
		log:   opts.Logger,
		gen:   gen,
		reg:   reg,
		locks: xsync.NewMapOf[string, *sync.Mutex](),
		outq:  make(map[string]toyqueue.DrainCloser),
	}
	e.alloc = &Allocator{
		gen:        gen,
		probe:      &storeProber{reg: reg},
		log:        opts.Logger,
		maxRetries: opts.MaxAllocRetries,
		recent:     recent,
	}
	return e, nil
}

func (e *Engine) Close() error {
	if e.db == nil {
		return ErrClosed
	}
	e.outlock.Lock()
	for name, sink := range e.outq {
		_ = sink.Close()
		delete(e.outq, name)
	}
	e.outlock.Unlock()
	err := e.db.Close()
	e.db = nil
	return err
}

// Snapshot returns a consistent read view. The caller owns the Close.
func (e *Engine) Snapshot() pebble.Reader {
	return e.db.NewSnapshot()
}

// Registry returns the injected registry collaborator.
func (e *Engine) Registry() Registry {
	return e.reg
}

func (e *Engine) tableLock(table string) *sync.Mutex {
	lock, _ := e.locks.LoadOrCompute(table, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return lock
}
