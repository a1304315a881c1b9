package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
	ImplPebble Implementation = "pebble"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut        Feature = 1 << iota // Support for Put operations
	FeatureGet                            // Support for Get operations
	FeatureDelete                         // Support for Delete operations
	FeatureIterate                        // Support for ordered iteration
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
	FeaturePersistent                     // Data survives a process restart
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureIterate:
		return "Iterate"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

// Features returns every single feature flag contained in the bitmask f.
func (f Feature) Features() []Feature {
	var features []Feature
	for flag := FeaturePut; flag <= FeaturePersistent; flag <<= 1 {
		if f&flag != 0 {
			features = append(features, flag)
		}
	}
	return features
}

type DatabaseInfo struct {
	Keys              int            `json:"keys"`
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata,omitempty"`
}

// IterFunc is called for each entry visited by KVDB.Iterate.
// Returning false stops the iteration.
type IterFunc func(key string, value []byte) (next bool)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys are compared bytewise. Any implementation must be safe for concurrent use.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or updates the entry for key.
	// The database must not retain the passed value slice.
	Put(key string, value []byte) (err error)

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(key string) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)

	// Iterate calls fn for every entry with start <= key < end in ascending key order.
	// An empty end means no upper bound. The value passed to fn is owned by the caller of fn.
	Iterate(start, end string, fn IterFunc) (err error)

	// Len returns the number of keys in the database.
	Len() (n int)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save writes all entries to the provided io.Writer using the snapshot format (see SaveEntries).
	Save(w io.Writer) (err error)

	// Load replaces the content of the database with the entries read from r.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
