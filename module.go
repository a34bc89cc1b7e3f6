package abd

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"abd/internal/chunkpool"
	"abd/internal/logging"
)

const (
	// DefaultChunkSize is the chunk size used when Config.ChunkSize is zero.
	DefaultChunkSize = 1024
	// DefaultMaxBlockSize caps payload sizes when Config.MaxBlockSize is zero.
	DefaultMaxBlockSize = 16 << 20
)

var ErrAlreadyInitialized = errors.New("abd: already initialized")

// Config carries the process-wide tunables. The zero value is usable:
// scattered allocation enabled, 1 KiB chunks, 16 MiB block cap, no logging.
type Config struct {
	// ChunkSize is the size in bytes of scattered chunks. Must be a power
	// of two. Captured at Init; ABDs allocated under one chunk size panic
	// when mapped after a reinitialization with another.
	ChunkSize int

	// ScatterEnabled selects scattered storage for Alloc. Nil means
	// enabled. AllocLinear is unaffected.
	ScatterEnabled *bool

	// MaxBlockSize is the largest allowed payload size.
	MaxBlockSize int

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger

	// Now is the clock used for creation timestamps. Defaults to time.Now.
	Now func() time.Time
}

// module is the process-wide state: tunables, pools, counters.
type module struct {
	chunkSize    int
	scatter      bool
	maxBlockSize int

	pool *chunkpool.Pool
	bufs *chunkpool.BufPool

	now    func() time.Time
	logger *slog.Logger
	stats  stats
}

var (
	initMu sync.Mutex
	state  atomic.Pointer[module]
)

// Init establishes the chunk pool, buffer pools and statistics registry.
// It must be called before any allocation and pairs with Fini.
func Init(cfg Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	if state.Load() != nil {
		return ErrAlreadyInitialized
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxBlockSize == 0 {
		cfg.MaxBlockSize = DefaultMaxBlockSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	scatter := cfg.ScatterEnabled == nil || *cfg.ScatterEnabled

	logger := logging.Default(cfg.Logger).With("component", "abd")

	pool, err := chunkpool.NewPool(cfg.ChunkSize, cfg.Logger)
	if err != nil {
		return fmt.Errorf("create chunk pool: %w", err)
	}

	m := &module{
		chunkSize:    cfg.ChunkSize,
		scatter:      scatter,
		maxBlockSize: cfg.MaxBlockSize,
		pool:         pool,
		bufs:         chunkpool.NewBufPool(cfg.Logger),
		now:          cfg.Now,
		logger:       logger,
	}
	state.Store(m)

	logger.Info("initialized",
		"chunkSize", m.chunkSize,
		"scatterEnabled", m.scatter,
		"maxBlockSize", m.maxBlockSize,
	)
	return nil
}

// Fini tears down the process-wide state. Every owner ABD must have been
// freed and every view put before calling it.
func Fini() {
	initMu.Lock()
	defer initMu.Unlock()

	m := state.Load()
	if m == nil {
		return
	}

	live := m.stats.scatterCnt.Load() + m.stats.linearCnt.Load()
	if live != 0 {
		m.logger.Warn("finishing with live ABDs", "count", live)
	}
	m.pool.DrainCaches()
	m.bufs.DrainCaches()
	state.Store(nil)
	m.logger.Info("finished")
}

// mod returns the process-wide state, panicking if Init has not run.
func mod() *module {
	m := state.Load()
	if m == nil {
		panic("abd: Init has not been called")
	}
	return m
}

// DrainCaches drops the cached free chunks and buffers held by the pools.
// The compactor calls this ahead of a sweep so relocation actually returns
// memory instead of refilling the caches.
func DrainCaches() {
	m := mod()
	m.pool.DrainCaches()
	m.bufs.DrainCaches()
}
