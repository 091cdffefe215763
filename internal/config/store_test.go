package config

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_SnapshotCopiesSelectedNodes(t *testing.T) {
	cfg := Default()
	cfg.SelectedNodes = []string{"!aaa"}
	store := NewStore(cfg, filepath.Join(t.TempDir(), "config.toml"))

	snap := store.Snapshot()
	snap.SelectedNodes[0] = "!mutated"

	if got := store.Snapshot().SelectedNodes[0]; got != "!aaa" {
		t.Errorf("snapshot shares the slice with the store: %q", got)
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store := NewStore(Default(), path)

	if err := store.Update(func(c *Config) { c.AutoSendInterval = 120 }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AutoSendInterval != 120 {
		t.Errorf("interval on disk = %d, want 120", loaded.AutoSendInterval)
	}
}

// Keyword handlers persist from the transport delivery goroutine while
// the menu writes the same document; both must go through the store.
func TestStore_ConcurrentUpdatesAndSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store := NewStore(Default(), path)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			store.Update(func(c *Config) { c.AutoSendInterval = ClampInterval(60 + i) })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			store.Update(func(c *Config) { c.SelectedNodes = []string{"!aaa", "!bbb"} })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			snap := store.Snapshot()
			_ = append(snap.SelectedNodes, "!ccc")
		}
	}()
	wg.Wait()

	snap := store.Snapshot()
	if snap.AutoSendInterval != 89 {
		t.Errorf("interval = %d, want 89", snap.AutoSendInterval)
	}
	if len(snap.SelectedNodes) != 2 {
		t.Errorf("selected nodes = %v", snap.SelectedNodes)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("saved document did not survive concurrent updates: %v", err)
	}
	if len(loaded.SelectedNodes) != 2 {
		t.Errorf("selected nodes on disk = %v", loaded.SelectedNodes)
	}
}
