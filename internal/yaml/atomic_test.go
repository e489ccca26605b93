package yaml

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestAtomicWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")

	if err := AtomicWrite(path, record{Name: "first", Count: 1}); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	var got record
	if err := ReadFile(path, &got); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Name != "first" || got.Count != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestAtomicWriteKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")

	if err := AtomicWrite(path, record{Name: "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, record{Name: "v2"}); err != nil {
		t.Fatal(err)
	}

	var cur record
	if err := ReadFile(path, &cur); err != nil {
		t.Fatal(err)
	}
	if cur.Name != "v2" {
		t.Errorf("current = %q, want v2", cur.Name)
	}

	var bak record
	if err := ReadFile(path+".bak", &bak); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if bak.Name != "v1" {
		t.Errorf("backup = %q, want v1", bak.Name)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.yaml")

	if err := AtomicWrite(path, record{Name: "x"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "record.yaml" {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestReadFileMissing(t *testing.T) {
	var got record
	if err := ReadFile(filepath.Join(t.TempDir(), "absent.yaml"), &got); err == nil {
		t.Error("reading a missing file should fail")
	}
}
