// Package catalog keeps the ordered list of images the slideshow cycles
// through, and remembers files that failed to decode so they are skipped
// on every later scan.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoImages means the directory holds no eligible files after
// filtering. Distinct from IndexOf's soft not-found.
var ErrNoImages = errors.New("catalog: no eligible images")

// Catalog is owned by the render loop and is not safe for concurrent use.
type Catalog struct {
	dir     string
	ext     string
	files   []string
	current int
	broken  map[string]struct{}
}

// New creates an empty catalog for dir. Only files whose extension is
// exactly ext (".jpg") are eligible. Call Scan before use.
func New(dir, ext string) *Catalog {
	return &Catalog{
		dir:    dir,
		ext:    ext,
		broken: make(map[string]struct{}),
	}
}

// Scan re-reads the directory. The previously current file keeps its
// position if it is still present; otherwise the position resets to 0.
func (c *Catalog) Scan() error {
	prev := ""
	if c.current < len(c.files) {
		prev = c.files[c.current]
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("catalog: scan %s: %w", c.dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != c.ext {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if _, bad := c.broken[path]; bad {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	c.files = files

	if len(files) == 0 {
		c.current = 0
		return fmt.Errorf("%w in %s", ErrNoImages, c.dir)
	}
	c.current = c.IndexOf(prev)
	return nil
}

// IndexOf returns the position of path, or 0 when it is not listed.
func (c *Catalog) IndexOf(path string) int {
	for i, f := range c.files {
		if f == path {
			return i
		}
	}
	return 0
}

// MarkBroken excludes path from this and every later scan. The file is
// left on disk. Broken files stay excluded until the process restarts.
func (c *Catalog) MarkBroken(path string) {
	c.broken[path] = struct{}{}
}

// IsBroken reports whether path was marked broken.
func (c *Catalog) IsBroken(path string) bool {
	_, ok := c.broken[path]
	return ok
}

func (c *Catalog) BrokenCount() int { return len(c.broken) }

func (c *Catalog) Len() int { return len(c.files) }

func (c *Catalog) Dir() string { return c.dir }

// Path returns the i-th file; i is taken modulo Len.
func (c *Catalog) Path(i int) string {
	n := len(c.files)
	if n == 0 {
		return ""
	}
	return c.files[((i%n)+n)%n]
}

func (c *Catalog) Current() int { return c.current }

// CurrentPath is the file at the current position, or "".
func (c *Catalog) CurrentPath() string {
	if len(c.files) == 0 {
		return ""
	}
	return c.files[c.current]
}

func (c *Catalog) SetCurrent(i int) {
	if n := len(c.files); n > 0 {
		c.current = ((i % n) + n) % n
	}
}
