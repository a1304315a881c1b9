package memory

import (
	"io"
	"sync"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultDegree = 32
	entryOverhead = 48 // estimated per-entry overhead of a tree node slot
)

const supportedFeatures = db.FeaturePut | db.FeatureGet | db.FeatureDelete |
	db.FeatureIterate | db.FeatureSave | db.FeatureLoad

// --------------------------------------------------------------------------
// Tree Items
// --------------------------------------------------------------------------

// entry is a key/value pair stored in the tree
type entry struct {
	key   string
	value []byte
}

// Less orders entries bytewise by key (btree.Item)
func (e *entry) Less(than btree.Item) bool {
	return e.key < than.(*entry).key
}

// pivot builds an entry used only for lookups
func pivot(key string) *entry {
	return &entry{key: key}
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// memoryImpl is an ordered in-memory engine on top of a B-tree
type memoryImpl struct {
	mu        sync.RWMutex
	tree      *btree.BTree
	degree    int
	sizeBytes int
}

// Options configures the memory engine
type Options struct {
	Degree int // B-tree degree (0 = default)
}

// NewMemoryDB creates a new, empty in-memory engine. opts is optional.
func NewMemoryDB(opts *Options) db.KVDB {
	degree := defaultDegree
	if opts != nil && opts.Degree > 1 {
		degree = opts.Degree
	}
	return &memoryImpl{
		tree:   btree.New(degree),
		degree: degree,
	}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

func (m *memoryImpl) Put(key string, value []byte) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old := m.tree.ReplaceOrInsert(&entry{key: key, value: valueCopy}); old != nil {
		m.sizeBytes -= len(old.(*entry).value)
	} else {
		m.sizeBytes += len(key) + entryOverhead
	}
	m.sizeBytes += len(valueCopy)
	return nil
}

func (m *memoryImpl) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old := m.tree.Delete(pivot(key)); old != nil {
		m.sizeBytes -= len(key) + len(old.(*entry).value) + entryOverhead
	}
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (m *memoryImpl) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item := m.tree.Get(pivot(key))
	if item == nil {
		return nil, false, nil
	}

	stored := item.(*entry).value
	value := make([]byte, len(stored))
	copy(value, stored)
	return value, true, nil
}

// Iterate holds the read lock while fn runs, so fn must not write to the database.
func (m *memoryImpl) Iterate(start, end string, fn db.IterFunc) error {
	if end != "" && start >= end {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	visit := func(item btree.Item) bool {
		e := item.(*entry)
		value := make([]byte, len(e.value))
		copy(value, e.value)
		return fn(e.key, value)
	}

	if end == "" {
		m.tree.AscendGreaterOrEqual(pivot(start), visit)
	} else {
		m.tree.AscendRange(pivot(start), pivot(end), visit)
	}
	return nil
}

func (m *memoryImpl) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes all entries in key order. Writers are blocked until Save returns.
func (m *memoryImpl) Save(w io.Writer) error {
	_, err := db.SaveEntries(w, func(fn db.IterFunc) error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		m.tree.Ascend(func(item btree.Item) bool {
			e := item.(*entry)
			return fn(e.key, e.value)
		})
		return nil
	})
	return err
}

// Load builds a new tree from r and swaps it in only if the whole snapshot could be read.
func (m *memoryImpl) Load(r io.Reader) error {
	tree := btree.New(m.degree)
	size := 0

	_, err := db.LoadEntries(r, func(key string, value []byte) error {
		tree.ReplaceOrInsert(&entry{key: key, value: value})
		size += len(key) + len(value) + entryOverhead
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree = tree
	m.sizeBytes = size
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (m *memoryImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

func (m *memoryImpl) GetInfo() db.DatabaseInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta := &struct {
		Degree int    `json:"degree"`
		Info   string `json:"info"`
	}{
		Degree: m.degree,
		Info:   "SizeBytes is an estimate that includes a fixed per-entry overhead.",
	}

	return db.DatabaseInfo{
		Keys:              m.tree.Len(),
		SizeBytes:         m.sizeBytes,
		DbType:            db.ImplMemory,
		SupportedFeatures: supportedFeatures.Features(),
		Metadata:          meta,
	}
}

func (m *memoryImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree = btree.New(m.degree)
	m.sizeBytes = 0
	return nil
}
