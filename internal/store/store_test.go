package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	exporterrors "github.com/dmaes/prometheus-shelly-exporter/internal/errors"
	"github.com/dmaes/prometheus-shelly-exporter/internal/metrics"
)

func fileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.gob")
	return New(NewFileBackend(path)), path
}

func sampleSnapshot() *metrics.Collection {
	col := metrics.NewCollection("shelly", map[string]string{"name": "ht1", "type": "SHHT-1"})
	col.AddGauge("humidity", 54.5, nil, "Air humidity, in %rH")
	col.AddCounter("probetime", 1700000000, nil, "Unixtime this target was probed and saved.")
	return col
}

func TestLoadBootstrapsMissingDocument(t *testing.T) {
	s, path := fileStore(t)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Expected store file to not exist before first load")
	}

	snapshots, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("Expected empty document on first use, got %d entries", len(snapshots))
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected store file to exist after first load: %v", err)
	}

	// A second load must read the bootstrapped document, not re-initialize.
	snapshots, err = s.Load(context.Background())
	if err != nil {
		t.Fatalf("Second load failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("Expected empty document, got %d entries", len(snapshots))
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s, _ := fileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "ht1", sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snapshots, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	snap, ok := snapshots["ht1"]
	if !ok {
		t.Fatal("Expected snapshot for ht1")
	}

	fam := snap.Family("shelly_humidity")
	if fam == nil || len(fam.Series) != 1 || fam.Series[0].Value != 54.5 {
		t.Errorf("Expected humidity series to roundtrip, got %+v", fam)
	}
	if fam.Series[0].Labels["name"] != "ht1" || fam.Series[0].Labels["type"] != "SHHT-1" {
		t.Errorf("Expected collection labels to survive persistence, got %v", fam.Series[0].Labels)
	}
	probetime := snap.Family("shelly_probetime")
	if probetime == nil || probetime.Type != metrics.Counter {
		t.Errorf("Expected probetime counter to roundtrip, got %+v", probetime)
	}
}

func TestSaveReplacesExistingEntry(t *testing.T) {
	s, _ := fileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "ht1", sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	updated := metrics.NewCollection("shelly", map[string]string{"name": "ht1", "type": "SHHT-1"})
	updated.AddGauge("humidity", 61, nil, "Air humidity, in %rH")
	if err := s.Save(ctx, "ht1", updated); err != nil {
		t.Fatal(err)
	}

	snapshots, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(snapshots))
	}
	if got := snapshots["ht1"].Family("shelly_humidity").Series[0].Value; got != 61 {
		t.Errorf("Expected newer snapshot to win, got humidity %v", got)
	}
}

func TestSaveKeepsOtherEntries(t *testing.T) {
	s, _ := fileStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "ht1", sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	other := metrics.NewCollection("shelly", map[string]string{"name": "trv1", "type": "SHTRV-01"})
	other.AddGauge("bat_charge", 80, nil, "Percentage of battery level")
	if err := s.Save(ctx, "trv1", other); err != nil {
		t.Fatal(err)
	}

	snapshots, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(snapshots))
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) ReadBytes(context.Context) ([]byte, error) {
	return nil, errors.New("medium gone")
}
func (failingBackend) WriteBytes(context.Context, []byte) error { return errors.New("medium gone") }

func TestStoreErrorsPropagate(t *testing.T) {
	s := New(failingBackend{})

	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("Expected load to fail")
	}
	var storeErr exporterrors.StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("Expected a StoreError, got %T", err)
	}

	if err := s.Save(context.Background(), "x", sampleSnapshot()); err == nil {
		t.Error("Expected save to fail")
	}
}

func TestFileBackendNotFound(t *testing.T) {
	backend := NewFileBackend(filepath.Join(t.TempDir(), "missing.gob"))
	_, err := backend.ReadBytes(context.Background())
	if !errors.Is(err, exporterrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTempObjectPathUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		path, err := tempObjectPath()
		if err != nil {
			t.Fatalf("tempObjectPath failed: %v", err)
		}
		if seen[path] {
			t.Fatalf("tempObjectPath returned duplicate %s", path)
		}
		seen[path] = true
	}
}
