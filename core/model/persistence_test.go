package model

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

type sample struct {
	BaseEstimator
	Mean  []float64
	Names []string
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "model.gob")

	in := &sample{Mean: []float64{1.5, -2}, Names: []string{"age", "sex"}}
	in.SetFitted()

	if err := SaveModel(in, path); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}

	var out sample
	if err := LoadModel(&out, path); err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if !out.IsFitted() {
		t.Error("fitted state was not persisted")
	}
	if out.Mean[0] != 1.5 || out.Mean[1] != -2 || out.Names[1] != "sex" {
		t.Errorf("unexpected round trip result %+v", out)
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the model file, got %d entries", len(entries))
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	var out sample
	err := LoadModel(&out, filepath.Join(t.TempDir(), "absent.gob"))

	var pErr *errors.PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if pErr.Op != "load" {
		t.Errorf("unexpected op %q", pErr.Op)
	}
}

func TestLoadModelCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.gob")
	if err := os.WriteFile(path, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out sample
	err := LoadModel(&out, path)
	var pErr *errors.PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestSaveModelToWriterAndBack(t *testing.T) {
	var buf bytes.Buffer
	if err := SaveModelToWriter(&sample{Mean: []float64{3}}, &buf); err != nil {
		t.Fatal(err)
	}
	var out sample
	if err := LoadModelFromReader(&out, &buf); err != nil {
		t.Fatal(err)
	}
	if out.Mean[0] != 3 {
		t.Errorf("got %v", out.Mean)
	}
}

func TestStateManagerRequireFitted(t *testing.T) {
	s := NewStateManager()
	if err := s.RequireFitted("Tree", "Predict"); err == nil {
		t.Error("expected NotFittedError before SetFitted")
	}

	s.SetDimensions(13, 100)
	s.SetFitted()
	if err := s.RequireFitted("Tree", "Predict"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if err := s.RequireFeatures("Tree.Predict", 12); err == nil {
		t.Error("expected DimensionError for wrong feature count")
	}

	snapshot := s.GetState()
	restored := NewStateManager()
	restored.SetState(snapshot)
	if nf, ns := restored.GetDimensions(); nf != 13 || ns != 100 || !restored.IsFitted() {
		t.Errorf("state not restored: %+v", restored.GetState())
	}
}

func TestWriteFileAtomicKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the write error to be returned")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("file content = %q, want the previous content", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestStagedFileRollbackRestoresPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	sf, err := StageFile(path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(path); string(got) != "old" {
		t.Fatalf("staging changed the destination: %q", got)
	}

	if err := sf.Commit(); err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(path); string(got) != "new" {
		t.Fatalf("after commit = %q, want new", got)
	}

	if err := sf.Rollback(); err != nil {
		t.Fatal(err)
	}
	sf.Discard()
	if got, _ := os.ReadFile(path); string(got) != "old" {
		t.Errorf("after rollback = %q, want old", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("leftover files after discard: %d entries", len(entries))
	}
}

func TestStagedFileRollbackRemovesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.png")

	sf, err := StageFile(path, func(w io.Writer) error {
		_, err := w.Write([]byte("png"))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sf.Discard()
	if err := sf.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := sf.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rolled back file still present: %v", err)
	}
}
