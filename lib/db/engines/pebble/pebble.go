package pebble

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

const supportedFeatures = db.FeaturePut | db.FeatureGet | db.FeatureDelete |
	db.FeatureIterate | db.FeatureSave | db.FeatureLoad | db.FeaturePersistent

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the pebble engine
type Options struct {
	Dir      string // Data directory (ignored if InMemory is set)
	InMemory bool   // Keep all files in an in-memory file system
	NoSync   bool   // Do not fsync on every write
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// Engine is a db.KVDB on top of pebble
type Engine struct {
	pdb       *pebble.DB
	opts      Options
	writeOpts *pebble.WriteOptions

	// wmu serializes writers so the key count stays exact
	wmu   sync.Mutex
	count atomic.Int64
}

// NewPebbleDB opens (or creates) a pebble database
func NewPebbleDB(opts Options) (db.KVDB, error) {
	return Open(opts)
}

// Open is like NewPebbleDB but returns the concrete type, which additionally supports Checkpoint.
func Open(opts Options) (*Engine, error) {
	pOpts := &pebble.Options{
		Logger: pebbleLogger{},
	}
	dir := opts.Dir
	if opts.InMemory {
		pOpts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, errors.New("pebble: no data directory given")
	}

	pdb, err := pebble.Open(dir, pOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %q: %w", dir, err)
	}

	impl := &Engine{
		pdb:       pdb,
		opts:      opts,
		writeOpts: pebble.Sync,
	}
	if opts.NoSync {
		impl.writeOpts = pebble.NoSync
	}

	n, err := impl.countKeys()
	if err != nil {
		_ = pdb.Close()
		return nil, err
	}
	impl.count.Store(int64(n))
	return impl, nil
}

// NewInMemoryPebbleDB creates a pebble database on an in-memory file system
func NewInMemoryPebbleDB() db.KVDB {
	impl, err := Open(Options{InMemory: true, NoSync: true})
	if err != nil {
		// opening an empty in-memory fs can only fail on programming errors
		panic(err)
	}
	return impl
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

func (p *Engine) Put(key string, value []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	exists, err := p.has([]byte(key))
	if err != nil {
		return err
	}
	if err := p.pdb.Set([]byte(key), value, p.writeOpts); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	if !exists {
		p.count.Add(1)
	}
	return nil
}

func (p *Engine) Delete(key string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	exists, err := p.has([]byte(key))
	if err != nil || !exists {
		return err
	}
	if err := p.pdb.Delete([]byte(key), p.writeOpts); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	p.count.Add(-1)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (p *Engine) has(key []byte) (bool, error) {
	_, closer, err := p.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebble get: %w", err)
	}
	return true, closer.Close()
}

func (p *Engine) Get(key string) ([]byte, bool, error) {
	v, closer, err := p.pdb.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	value := make([]byte, len(v))
	copy(value, v)
	return value, true, nil
}

func (p *Engine) Iterate(start, end string, fn db.IterFunc) error {
	if end != "" && start >= end {
		return nil
	}

	iterOpts := &pebble.IterOptions{LowerBound: []byte(start)}
	if end != "" {
		iterOpts.UpperBound = []byte(end)
	}
	return iterate(p.pdb.NewIter(iterOpts), fn)
}

// iterate walks it from the first entry and closes it
func iterate(it *pebble.Iterator, fn db.IterFunc) error {
	for valid := it.First(); valid; valid = it.Next() {
		key := string(it.Key())
		value := make([]byte, len(it.Value()))
		copy(value, it.Value())
		if !fn(key, value) {
			break
		}
	}
	return it.Close()
}

func (p *Engine) countKeys() (int, error) {
	n := 0
	err := iterate(p.pdb.NewIter(nil), func(string, []byte) bool {
		n++
		return true
	})
	return n, err
}

func (p *Engine) Len() int {
	return int(p.count.Load())
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a consistent point-in-time view while writers keep going.
func (p *Engine) Save(w io.Writer) error {
	snap := p.pdb.NewSnapshot()
	defer snap.Close()

	_, err := db.SaveEntries(w, func(fn db.IterFunc) error {
		return iterate(snap.NewIter(nil), fn)
	})
	return err
}

// Load replaces the content of the database in a single batch.
func (p *Engine) Load(r io.Reader) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	batch := p.pdb.NewBatch()
	defer batch.Close()

	var delErr error
	err := iterate(p.pdb.NewIter(nil), func(key string, _ []byte) bool {
		delErr = batch.Delete([]byte(key), nil)
		return delErr == nil
	})
	if err == nil {
		err = delErr
	}
	if err != nil {
		return fmt.Errorf("failed to clear database: %w", err)
	}

	// a snapshot never holds a key twice
	n, err := db.LoadEntries(r, func(key string, value []byte) error {
		return batch.Set([]byte(key), value, nil)
	})
	if err != nil {
		return err
	}

	if err := batch.Commit(p.writeOpts); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	p.count.Store(int64(n))
	return nil
}

// Checkpoint writes a consistent copy of the database files to destDir.
func (p *Engine) Checkpoint(destDir string) error {
	if p.opts.InMemory {
		return errors.New("pebble: checkpoint of an in-memory database")
	}
	return p.pdb.Checkpoint(destDir)
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (p *Engine) SupportsFeature(feature db.Feature) bool {
	features := supportedFeatures
	if p.opts.InMemory {
		features &^= db.FeaturePersistent
	}
	return features&feature == feature
}

func (p *Engine) GetInfo() db.DatabaseInfo {
	metrics := p.pdb.Metrics()

	features := supportedFeatures
	if p.opts.InMemory {
		features &^= db.FeaturePersistent
	}

	meta := &struct {
		Dir        string `json:"dir,omitempty"`
		InMemory   bool   `json:"in_memory"`
		Sync       bool   `json:"sync"`
		NumSSTable int64  `json:"num_sstables"`
		Info       string `json:"info"`
	}{
		Dir:        p.opts.Dir,
		InMemory:   p.opts.InMemory,
		Sync:       !p.opts.NoSync,
		NumSSTable: metrics.Total().NumFiles,
		Info:       "SizeBytes is the disk space used by all database files.",
	}

	return db.DatabaseInfo{
		Keys:              p.Len(),
		SizeBytes:         int(metrics.DiskSpaceUsage()),
		DbType:            db.ImplPebble,
		SupportedFeatures: features.Features(),
		Metadata:          meta,
	}
}

func (p *Engine) Close() error {
	return p.pdb.Close()
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// pebbleLogger routes pebble's log output to the store logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf("pebble: "+format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf("pebble: "+format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf("pebble: "+format, args...)
}
