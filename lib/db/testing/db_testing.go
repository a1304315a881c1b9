package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/raftstore/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Iterate", func(t *testing.T) {
			testIterate(t, factory())
		})

		t.Run("IterateStop", func(t *testing.T) {
			testIterateStop(t, factory())
		})

		t.Run("Len", func(t *testing.T) {
			testLen(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadReplaces", func(t *testing.T) {
			testLoadReplaces(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustPut(t testing.TB, database db.KVDB, key string, value []byte) {
	if err := database.Put(key, value); err != nil {
		t.Fatalf("Put(%q) returned error: %v", key, err)
	}
}

func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	value, ok, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) returned error: %v", key, err)
	}
	return value, ok
}

func collect(t testing.TB, database db.KVDB, start, end string) []string {
	var keys []string
	err := database.Iterate(start, end, func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		t.Fatalf("Iterate(%q, %q) returned error: %v", start, end, err)
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, database, testKey, testValue1)

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Get(%s) = %s, want %s", testKey, result, testValue1)
	}

	mustPut(t, database, testKey, testValue2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Get(%s) = %s, want %s", testKey, result, testValue2)
	}

	if _, exists = mustGet(t, database, "nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// the engine must neither retain the value passed to Put nor hand out its own buffer
	input := []byte("mutable")
	mustPut(t, database, "mutable-key", input)
	input[0] = 'X'
	retrieved, _ := mustGet(t, database, "mutable-key")
	if !bytes.Equal(retrieved, []byte("mutable")) {
		t.Errorf("Put should copy the value, got %s", retrieved)
	}
	retrieved[0] = 'Y'
	again, _ := mustGet(t, database, "mutable-key")
	if !bytes.Equal(again, []byte("mutable")) {
		t.Errorf("Get should return a copy, got %s", again)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	testKey := "delete-test-key"
	mustPut(t, database, testKey, []byte("delete-test-value"))

	if _, exists := mustGet(t, database, testKey); !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}

	if err := database.Delete(testKey); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}

	if _, exists := mustGet(t, database, testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if err := database.Delete("nonexistent-key"); err != nil {
		t.Errorf("Delete() of a missing key returned error: %v", err)
	}
}

func testIterate(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureIterate)

	// insert out of order
	for _, key := range []string{"b", "d", "a", "c", "e", "aa", "b0"} {
		mustPut(t, database, key, []byte("v-"+key))
	}

	tests := []struct {
		name       string
		start, end string
		want       []string
	}{
		{"all", "", "", []string{"a", "aa", "b", "b0", "c", "d", "e"}},
		{"start inclusive", "b", "", []string{"b", "b0", "c", "d", "e"}},
		{"end exclusive", "a", "c", []string{"a", "aa", "b", "b0"}},
		{"between keys", "ab", "bz", []string{"b", "b0"}},
		{"empty interval", "c", "c", nil},
		{"start after end", "d", "b", nil},
		{"past last key", "f", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, database, tt.start, tt.end)
			if !equalKeys(got, tt.want) {
				t.Errorf("Iterate(%q, %q) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}

	// values are passed along with the keys
	err := database.Iterate("c", "d", func(key string, value []byte) bool {
		if string(value) != "v-"+key {
			t.Errorf("Iterate value for %s = %s, want v-%s", key, value, key)
		}
		return true
	})
	if err != nil {
		t.Errorf("Iterate() returned error: %v", err)
	}
}

func testIterateStop(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureIterate)

	for i := 0; i < 100; i++ {
		mustPut(t, database, fmt.Sprintf("key-%03d", i), []byte("v"))
	}

	visited := 0
	err := database.Iterate("", "", func(key string, _ []byte) bool {
		visited++
		return visited < 10
	})
	if err != nil {
		t.Fatalf("Iterate() returned error: %v", err)
	}
	if visited != 10 {
		t.Errorf("Iterate() visited %d entries after stop, want 10", visited)
	}
}

func testLen(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureDelete)

	if n := database.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}

	for i := 0; i < 50; i++ {
		mustPut(t, database, fmt.Sprintf("len-%d", i), []byte("v"))
	}
	// overwrite does not change the count
	mustPut(t, database, "len-0", []byte("w"))

	if n := database.Len(); n != 50 {
		t.Errorf("Len() = %d, want 50", n)
	}

	for i := 0; i < 10; i++ {
		if err := database.Delete(fmt.Sprintf("len-%d", i)); err != nil {
			t.Fatalf("Delete() returned error: %v", err)
		}
	}

	if n := database.Len(); n != 40 {
		t.Errorf("Len() = %d, want 40", n)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		mustPut(t, database, key, value)
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	if n := database2.Len(); n != numEntries {
		t.Errorf("Len() after Load = %d, want %d", n, numEntries)
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := mustGet(t, database2, key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numEntries; i++ {
		actualValue, exists := mustGet(t, database, originalKeys[i])
		if !exists {
			t.Errorf("Key %s not found in original database", originalKeys[i])
			continue
		}
		if !bytes.Equal(actualValue, originalValues[i]) {
			t.Errorf("Value mismatch in original database for key %s", originalKeys[i])
		}
	}
}

func testLoadReplaces(t *testing.T, factory DBFactory) {
	source := factory()
	target := factory()
	defer source.Close()
	defer target.Close()

	requireFeature(t, source, db.FeaturePut|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	mustPut(t, source, "shared", []byte("from-source"))
	mustPut(t, target, "shared", []byte("from-target"))
	mustPut(t, target, "stale", []byte("stale"))

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	// trailing data must not be consumed as part of the snapshot
	buf.WriteString("trailer")

	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if _, ok := mustGet(t, target, "stale"); ok {
		t.Errorf("Load() should drop entries that are not part of the snapshot")
	}
	if v, _ := mustGet(t, target, "shared"); string(v) != "from-source" {
		t.Errorf("Get(shared) = %s, want from-source", v)
	}

	if err := target.Load(bytes.NewReader([]byte{7})); err == nil {
		t.Errorf("Load() of a corrupt snapshot should fail")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	emptyValueKey := "empty-value-key"
	mustPut(t, database, emptyValueKey, []byte{})

	result, exists := mustGet(t, database, emptyValueKey)
	if !exists {
		t.Errorf("Key for empty value not found after Put")
	} else if len(result) != 0 {
		t.Errorf("Empty value mismatch: %v", result)
	}

	nilValueKey := "nil-value-key"
	mustPut(t, database, nilValueKey, nil)

	result, exists = mustGet(t, database, nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Put")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	binaryKey := string([]byte{0x00, 0xff, 0x10})
	mustPut(t, database, binaryKey, []byte("binary"))
	if v, ok := mustGet(t, database, binaryKey); !ok || string(v) != "binary" {
		t.Errorf("Get(binary key) = %s,%v, want binary,true", v, ok)
	}

	if !t.Failed() {
		largeKey := string(bytes.Repeat([]byte("k"), 1000))
		largeKeyValue := []byte("value for large key")

		mustPut(t, database, largeKey, largeKeyValue)

		result, exists = mustGet(t, database, largeKey)
		if !exists {
			t.Errorf("Large key not found after Put")
		} else if !bytes.Equal(result, largeKeyValue) {
			t.Errorf("Value mismatch for large key")
		}

		largeValueKey := "large-value-key"
		largeValue := make([]byte, 8*1024*1024)
		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}

		mustPut(t, database, largeValueKey, largeValue)

		result, exists = mustGet(t, database, largeValueKey)
		if !exists {
			t.Errorf("Key for large value not found after Put")
		} else if !bytes.Equal(result, largeValue) {
			t.Errorf("Large value mismatch: got %d bytes, want %d", len(result), len(largeValue))
		}
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)

	mustPut(t, database, "info-1", []byte("12345"))
	mustPut(t, database, "info-2", []byte("12345"))

	info := database.GetInfo()
	if info.Keys != 2 {
		t.Errorf("GetInfo().Keys = %d, want 2", info.Keys)
	}
	if info.DbType == "" {
		t.Errorf("GetInfo().DbType should not be empty")
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("GetInfo().SupportedFeatures should not be empty")
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete|db.FeatureIterate)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5:
			op = "put"
		case 6, 7:
			op = "get"
		case 8:
			op = "iterate"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "put" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	errs := make(chan error, numWorkers)
	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				var err error
				switch op.op {
				case "put":
					err = database.Put(op.key, op.value)
				case "get":
					_, _, err = database.Get(op.key)
				case "iterate":
					err = database.Iterate("hot-key-", "hot-key-~", func(string, []byte) bool { return true })
				case "delete":
					err = database.Delete(op.key)
				}
				if err != nil {
					errs <- fmt.Errorf("%s %s: %w", op.op, op.key, err)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Error during parallel operations: %v", err)
	}

	// iteration must agree with point lookups after the load settles
	count := 0
	err := database.Iterate("", "", func(key string, value []byte) bool {
		count++
		v, ok, err := database.Get(key)
		if err != nil || !ok || !bytes.Equal(v, value) {
			t.Errorf("Consistency error for key %s: Get() = %v, %v, %v", key, len(v), ok, err)
		}
		return true
	})
	if err != nil {
		t.Fatalf("Iterate() returned error: %v", err)
	}
	if count != database.Len() {
		t.Errorf("Iterate() visited %d keys, Len() = %d", count, database.Len())
	}
}
