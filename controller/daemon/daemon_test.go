package daemon

import (
	"path/filepath"
	"testing"

	"github.com/garden-pi/garden-pi/controller/storage"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	conf := DefaultConfig()
	conf.Database = filepath.Join(t.TempDir(), "garden-pi.db")
	conf.DevMode = true
	return conf
}

func TestNewAndStop(t *testing.T) {
	g, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("construct daemon: %v", err)
	}
	g.Stop()
}

func TestFailedConstructionReleasesStore(t *testing.T) {
	conf := testConfig(t)
	conf.DevMode = false
	conf.GPIOChip = "no-such-chip"

	if _, err := New(conf); err == nil {
		t.Fatal("expected gpio failure")
	}
	// The database lock must be released; a leaked store would make
	// this reopen time out.
	store, err := storage.NewStore(conf.Database)
	if err != nil {
		t.Fatalf("store still held after failed construction: %v", err)
	}
	store.Close()
}
