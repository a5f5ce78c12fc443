package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "c.jpg", "a.jpg", "b.png", "d.JPG", "e.jpg.part")
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", c.Len())
	}
	if got := filepath.Base(c.Path(0)); got != "a.jpg" {
		t.Errorf("Path(0): got %s, want a.jpg", got)
	}
	if got := filepath.Base(c.Path(1)); got != "c.jpg" {
		t.Errorf("Path(1): got %s, want c.jpg", got)
	}
}

func TestScanEmptyIsLoud(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "readme.txt")

	err := New(dir, ".jpg").Scan()
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("got %v, want ErrNoImages", err)
	}
}

func TestScanMissingDirectory(t *testing.T) {
	err := New(filepath.Join(t.TempDir(), "gone"), ".jpg").Scan()
	if err == nil || errors.Is(err, ErrNoImages) {
		t.Errorf("got %v, want a filesystem error", err)
	}
}

func TestRescanKeepsPosition(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg", "c.jpg")

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	c.SetCurrent(1) // c.jpg

	touch(t, dir, "a.jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	if got := filepath.Base(c.CurrentPath()); got != "c.jpg" {
		t.Errorf("after adding a.jpg: current %s, want c.jpg", got)
	}
	if c.Current() != 2 {
		t.Errorf("Current: got %d, want 2", c.Current())
	}
}

func TestRescanVanishedResetsToStart(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", "b.jpg", "c.jpg")

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	c.SetCurrent(2)
	if err := os.Remove(filepath.Join(dir, "c.jpg")); err != nil {
		t.Fatal(err)
	}
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	if c.Current() != 0 {
		t.Errorf("Current: got %d, want 0", c.Current())
	}
}

func TestMarkBrokenPersistsAcrossScans(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "img1.jpg", "img2.jpg", "img3.jpg")

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	broken := c.Path(1)
	c.MarkBroken(broken)

	for i := 0; i < 2; i++ {
		if err := c.Scan(); err != nil {
			t.Fatal(err)
		}
		if c.Len() != 2 {
			t.Fatalf("scan %d: Len %d, want 2", i, c.Len())
		}
		for j := 0; j < c.Len(); j++ {
			if c.Path(j) == broken {
				t.Errorf("scan %d: broken file still listed", i)
			}
		}
	}
	if _, err := os.Stat(broken); err != nil {
		t.Errorf("broken file must stay on disk: %v", err)
	}
	if !c.IsBroken(broken) || c.BrokenCount() != 1 {
		t.Error("broken bookkeeping lost")
	}
}

func TestIndexOfSoftFail(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", "b.jpg")

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	if got := c.IndexOf(filepath.Join(dir, "b.jpg")); got != 1 {
		t.Errorf("IndexOf(b): got %d, want 1", got)
	}
	if got := c.IndexOf("/nowhere/x.jpg"); got != 0 {
		t.Errorf("IndexOf(missing): got %d, want 0", got)
	}
}

func TestPathWrapsModulo(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", "b.jpg", "c.jpg")

	c := New(dir, ".jpg")
	if err := c.Scan(); err != nil {
		t.Fatal(err)
	}
	if c.Path(-1) != c.Path(2) || c.Path(3) != c.Path(0) {
		t.Error("Path does not wrap")
	}
	c.SetCurrent(-1)
	if c.Current() != 2 {
		t.Errorf("SetCurrent(-1): got %d, want 2", c.Current())
	}
}
