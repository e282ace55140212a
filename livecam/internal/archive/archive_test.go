package archive

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := New(t.TempDir(), "aso", "")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStamp(t *testing.T) {
	now := time.Date(2025, 11, 3, 10, 20, 30, 123_000_000, time.UTC)
	if got, want := Stamp(now), "2025-11-03T10-20-30-123Z"; got != want {
		t.Errorf("Stamp = %q, want %q", got, want)
	}
}

func TestStamp_ConvertsToUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2025, 11, 4, 1, 0, 0, 0, tokyo) // 2025-11-03T16:00Z
	if got := DateDir(now); got != "2025-11-03" {
		t.Errorf("DateDir = %q, want 2025-11-03", got)
	}
	if got := Stamp(now); !strings.HasPrefix(got, "2025-11-03T16-00-00") {
		t.Errorf("Stamp = %q", got)
	}
}

func TestBuild_DateMatchesFilename(t *testing.T) {
	// WHAT: the folder date and the filename timestamp come from the same instant.
	// WHY: no drift between partition and file, even across midnight.
	b := newBuilder(t)
	now := time.Date(2025, 12, 31, 23, 59, 59, 999_000_000, time.UTC)

	dir, name, err := b.Build(now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "2025-12-31" {
		t.Errorf("dir = %q", dir)
	}
	if name != "aso-2025-12-31T23-59-59-999Z.jpg" {
		t.Errorf("name = %q", name)
	}
	if filepath.Dir(dir) != b.Root() {
		t.Errorf("dir %q not under root %q", dir, b.Root())
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	b := newBuilder(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, _, err := b.Build(now); err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
	}
}

func TestBuild_SameSecondDistinctNames(t *testing.T) {
	b := newBuilder(t)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	_, n1, _ := b.Build(base.Add(100 * time.Millisecond))
	_, n2, _ := b.Build(base.Add(101 * time.Millisecond))
	if n1 == n2 {
		t.Fatalf("collision: %q", n1)
	}
}

func TestBuild_RootIsFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := New(root, "aso", ".jpg")
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = b.Build(time.Now())
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "mkdir" {
		t.Fatalf("err = %v, want mkdir PersistenceError", err)
	}
}

func TestWrite_Atomic(t *testing.T) {
	b := newBuilder(t)
	dir, name, err := b.Build(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write(dir, name, []byte("jpegbytes")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpegbytes" {
		t.Errorf("content = %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the final file, got %d entries", len(entries))
	}
}

func TestWrite_NeverOverwrites(t *testing.T) {
	b := newBuilder(t)
	dir, name, _ := b.Build(time.Now())
	if err := b.Write(dir, name, []byte("first")); err != nil {
		t.Fatal(err)
	}
	err := b.Write(dir, name, []byte("second"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("err = %v, want ErrExist", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, name))
	if string(data) != "first" {
		t.Errorf("file overwritten: %q", data)
	}
}

func TestWrite_NeverOverwritesLateArrival(t *testing.T) {
	// WHAT: a file that appears between the existence check and the commit
	// is kept, and the temp file is cleaned up.
	// WHY: the no-overwrite guarantee must hold at the commit itself.
	b := newBuilder(t)
	dir, name, _ := b.Build(time.Now())
	b.beforeCommit = func(final string) {
		if err := os.WriteFile(final, []byte("other"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	err := b.Write(dir, name, []byte("mine"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("err = %v, want ErrExist", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, name))
	if string(data) != "other" {
		t.Errorf("content = %q, existing file was replaced", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestWrite_MissingDir(t *testing.T) {
	b := newBuilder(t)
	err := b.Write(filepath.Join(b.Root(), "nope"), "x.jpg", []byte("x"))
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "create" {
		t.Fatalf("err = %v, want create PersistenceError", err)
	}
}

func TestRel(t *testing.T) {
	b := newBuilder(t)
	dir := filepath.Join(b.Root(), "2025-11-03")
	if got := b.Rel(dir, "aso-x.jpg"); got != "2025-11-03/aso-x.jpg" {
		t.Errorf("Rel = %q", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "aso", ""); err == nil {
		t.Error("empty root should fail")
	}
	if _, err := New(t.TempDir(), "../up", ""); err == nil {
		t.Error("traversal prefix should fail")
	}
	b, err := New(t.TempDir(), "aso", "png")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(b.Filename(time.Now()), ".png") {
		t.Error("extension without dot should be normalised")
	}
}
