// Package engine wires the buffer pool, transaction manager, and lock
// manager into one owned unit, assembled by a single top-level constructor
// the way a storage engine's bufferpool/disk_manager/transaction_manager
// trio is normally wired — generalized to this core's three components and
// to a functional-options Config instead of positional constructor
// arguments.
package engine

import (
	"path/filepath"
	"strconv"
)

// Config configures a new Engine. Use NewConfig with Option values to
// build one; the zero value is not valid (PoolInstances/PoolSize must be
// positive).
type Config struct {
	DataDir       string
	PoolInstances int
	PoolSize      int
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithDataDir sets the directory holding one data file per buffer-pool
// instance. Defaults to the current directory.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithPoolInstances sets N, the buffer pool's shard count (§4.C).
func WithPoolInstances(n int) Option {
	return func(c *Config) { c.PoolInstances = n }
}

// WithPoolSize sets the frame count of each shard.
func WithPoolSize(n int) Option {
	return func(c *Config) { c.PoolSize = n }
}

// NewConfig returns a Config with sane defaults (1 instance, 64 frames,
// current directory), then applies opts in order.
func NewConfig(opts ...Option) Config {
	c := Config{
		DataDir:       ".",
		PoolInstances: 1,
		PoolSize:      64,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// dataFilePath is the on-disk file for shard i.
func (c Config) dataFilePath(i int) string {
	return filepath.Join(c.DataDir, "latchdb_shard_"+strconv.Itoa(i)+".db")
}
