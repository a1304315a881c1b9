package memory

import (
	"testing"

	"github.com/ValentinKolb/raftstore/lib/db"
	dbtesting "github.com/ValentinKolb/raftstore/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MemoryDB", func() db.KVDB {
		return NewMemoryDB(nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MemoryDB", func() db.KVDB {
		return NewMemoryDB(nil)
	})
}

func TestSizeAccounting(t *testing.T) {
	database := NewMemoryDB(&Options{Degree: 4})
	defer database.Close()

	database.Put("a", []byte("12345"))
	database.Put("a", []byte("12"))
	database.Put("b", []byte("1"))

	want := len("a") + 2 + entryOverhead + len("b") + 1 + entryOverhead
	if got := database.GetInfo().SizeBytes; got != want {
		t.Errorf("GetInfo().SizeBytes = %d, want %d", got, want)
	}

	database.Delete("a")
	database.Delete("a")

	want = len("b") + 1 + entryOverhead
	if got := database.GetInfo().SizeBytes; got != want {
		t.Errorf("GetInfo().SizeBytes = %d, want %d", got, want)
	}
}

func TestSupportsFeature(t *testing.T) {
	database := NewMemoryDB(nil)
	defer database.Close()

	tests := []struct {
		feature db.Feature
		want    bool
	}{
		{db.FeaturePut, true},
		{db.FeaturePut | db.FeatureIterate, true},
		{db.FeatureSave | db.FeatureLoad, true},
		{db.FeaturePersistent, false},
		{db.FeatureGet | db.FeaturePersistent, false},
	}

	for _, tt := range tests {
		t.Run(tt.feature.String(), func(t *testing.T) {
			if got := database.SupportsFeature(tt.feature); got != tt.want {
				t.Errorf("SupportsFeature(%b) = %v, want %v", tt.feature, got, tt.want)
			}
		})
	}
}
