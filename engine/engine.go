package engine

import (
	"fmt"
	"os"

	"latchdb/index/hash"
	"latchdb/internal/logging"
	"latchdb/internal/metrics"
	"latchdb/lock"
	"latchdb/storage/buffer"
	"latchdb/storage/disk"
	"latchdb/txn"
)

var log = logging.For("engine")

// Engine owns the three components §2 names and wires their
// dependency order: the buffer pool underlies everything; the
// transaction manager's registry feeds the lock manager's wound-wait;
// hash indexes are built on demand over the buffer pool.
type Engine struct {
	Pool    *buffer.ParallelBufferPool
	Txns    *txn.Manager
	Locks   *lock.Manager
	Metrics *metrics.Registry

	diskManagers []*disk.Manager
}

// Open creates (or reopens) an Engine per cfg: one disk.Manager per shard
// under cfg.DataDir, a ParallelBufferPool over them, and fresh
// txn/lock managers.
func Open(cfg Config) (*Engine, error) {
	if cfg.PoolInstances <= 0 || cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("engine: PoolInstances and PoolSize must be positive")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: creating data dir: %w", err)
	}

	reg := metrics.NewRegistry()

	dms := make([]*disk.Manager, cfg.PoolInstances)
	for i := 0; i < cfg.PoolInstances; i++ {
		dm, err := disk.Open(cfg.dataFilePath(i))
		if err != nil {
			for _, opened := range dms[:i] {
				opened.Close()
			}
			return nil, fmt.Errorf("engine: opening shard %d: %w", i, err)
		}
		dms[i] = dm
	}

	pool, err := buffer.NewParallelBufferPool(cfg.PoolInstances, cfg.PoolSize, dms, &reg.BufferPool)
	if err != nil {
		for _, dm := range dms {
			dm.Close()
		}
		return nil, fmt.Errorf("engine: building buffer pool: %w", err)
	}

	txnMgr := txn.NewManager()
	lockMgr := lock.NewManager(txnMgr, &reg.LockManager)

	log.WithField("instances", cfg.PoolInstances).WithField("pool_size", cfg.PoolSize).Info("engine opened")

	return &Engine{
		Pool:         pool,
		Txns:         txnMgr,
		Locks:        lockMgr,
		Metrics:      reg,
		diskManagers: dms,
	}, nil
}

// Close flushes every buffer-pool page and closes each shard's file.
func (e *Engine) Close() error {
	if err := e.Pool.FlushAllPages(); err != nil {
		log.WithError(err).Warn("flush on close failed")
	}
	var firstErr error
	for _, dm := range e.diskManagers {
		if err := dm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewHashIndex builds a new extendible hash index over this engine's
// buffer pool for the given key/value codecs.
func NewHashIndex[K, V any](e *Engine, keyCodec hash.Codec[K], valCodec hash.Codec[V], cmp hash.Comparator[K], hasher hash.Hasher[K]) (*hash.Table[K, V], error) {
	return hash.NewTable[K, V](e.Pool, keyCodec, valCodec, cmp, hasher)
}
