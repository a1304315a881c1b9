package backup

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/raftstore/lib/db/engines/pebble"
)

func TestDumpRestore(t *testing.T) {
	for _, name := range []string{"dump.bin", "dump.zst"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			src, err := pebble.Open(pebble.Options{Dir: filepath.Join(dir, "src")})
			if err != nil {
				t.Fatalf("Open() returned error: %v", err)
			}
			defer src.Close()
			for _, k := range []string{"a", "b", "c"} {
				if err := src.Put(k, []byte("value-"+k)); err != nil {
					t.Fatalf("Put(%s) returned error: %v", k, err)
				}
			}

			path := filepath.Join(dir, name)
			if err := dump(src, path); err != nil {
				t.Fatalf("dump() returned error: %v", err)
			}

			dst, err := pebble.Open(pebble.Options{Dir: filepath.Join(dir, "dst")})
			if err != nil {
				t.Fatalf("Open() returned error: %v", err)
			}
			defer dst.Close()
			if err := dst.Put("stale", []byte("x")); err != nil {
				t.Fatalf("Put() returned error: %v", err)
			}

			if err := restore(dst, path); err != nil {
				t.Fatalf("restore() returned error: %v", err)
			}
			if dst.Len() != 3 {
				t.Errorf("Len() = %d, want 3", dst.Len())
			}
			if _, ok, _ := dst.Get("stale"); ok {
				t.Errorf("Get(stale) found a key removed by restore")
			}
			if val, ok, _ := dst.Get("b"); !ok || string(val) != "value-b" {
				t.Errorf("Get(b) = %q, %v, want value-b, true", val, ok)
			}
		})
	}
}

func TestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	engine, err := pebble.Open(pebble.Options{Dir: filepath.Join(dir, "db")})
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	if err := engine.Put("k", []byte("v")); err != nil {
		t.Fatalf("Put() returned error: %v", err)
	}
	if err := engine.Checkpoint(filepath.Join(dir, "cp")); err != nil {
		t.Fatalf("Checkpoint() returned error: %v", err)
	}
	engine.Close()

	cp, err := pebble.Open(pebble.Options{Dir: filepath.Join(dir, "cp")})
	if err != nil {
		t.Fatalf("Open(checkpoint) returned error: %v", err)
	}
	defer cp.Close()
	if val, ok, _ := cp.Get("k"); !ok || string(val) != "v" {
		t.Errorf("Get(k) = %q, %v, want v, true", val, ok)
	}
}
