package slideshow

import (
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"

	"github.com/photonicat/photonicat2_slideshow/catalog"
	"github.com/photonicat/photonicat2_slideshow/decoder"
)

// ErrNoLoadableImage means every catalog entry was tried once and none
// could be shown. The slideshow cannot make progress.
var ErrNoLoadableImage = errors.New("slideshow: no loadable image in catalog")

var (
	errUnreadable = errors.New("unreadable")
	errBroken     = errors.New("undecodable")
)

type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Uploader owns the GPU side of the two texture slots. It is called only
// from the thread that owns the GL context.
type Uploader interface {
	Upload(slot int, img *decoder.Image) error
}

// Slot describes what a texture slot currently holds.
type Slot struct {
	Path   string
	Width  int
	Height int
	Thumb  *image.RGBA `json:"-"` // nil unless thumbnails are enabled
}

// staged is a decoded file waiting for upload.
type staged struct {
	path   string
	img    *decoder.Image
	thumb  *image.RGBA
	read   time.Duration
	decode time.Duration
}

// fileLoader reads and decodes files. It holds no mutable state so the
// background prefetcher can share it.
type fileLoader struct {
	dec        decoder.Decoder
	readFile   func(string) ([]byte, error)
	thumbWidth int
}

func (l fileLoader) load(path string) (*staged, error) {
	start := time.Now()
	data, err := l.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnreadable, err)
	}
	read := time.Since(start)

	start = time.Now()
	img, err := l.dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBroken, err)
	}
	if !img.Valid() {
		return nil, fmt.Errorf("%w: decoder returned %dx%d with %d bytes", errBroken, img.Width, img.Height, len(img.Pix))
	}
	s := &staged{path: path, img: img, read: read, decode: time.Since(start)}
	if l.thumbWidth > 0 {
		s.thumb = thumbnail(img, l.thumbWidth)
	}
	return s, nil
}

func thumbnail(img *decoder.Image, width int) *image.RGBA {
	height := img.Height * width / img.Width
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	src := img.RGBA()
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// TexturePair manages the two texture slots: one active (on screen) and
// one back slot that receives the next image. It is owned by the render
// loop thread.
type TexturePair struct {
	cat    *catalog.Catalog
	up     Uploader
	loader fileLoader
	stats  *LoadStats
	log    *log.Logger

	active     int
	slots      [2]Slot
	backIndex  int
	prefetched bool

	async *prefetcher
}

type Option func(*TexturePair)

// WithReadFile replaces os.ReadFile.
func WithReadFile(f func(string) ([]byte, error)) Option {
	return func(tp *TexturePair) { tp.loader.readFile = f }
}

func WithLogger(l *log.Logger) Option {
	return func(tp *TexturePair) { tp.log = l }
}

// WithStats records read/decode/upload timings of every load.
func WithStats(s *LoadStats) Option {
	return func(tp *TexturePair) { tp.stats = s }
}

// WithThumbnails keeps a CPU thumbnail of each slot, width pixels wide.
func WithThumbnails(width int) Option {
	return func(tp *TexturePair) { tp.loader.thumbWidth = width }
}

// WithAsyncDecode moves prefetch decoding to a background goroutine.
// Uploads still happen on the loop thread.
func WithAsyncDecode() Option {
	return func(tp *TexturePair) { tp.async = &prefetcher{} }
}

func NewTexturePair(cat *catalog.Catalog, dec decoder.Decoder, up Uploader, opts ...Option) *TexturePair {
	tp := &TexturePair{
		cat:    cat,
		up:     up,
		loader: fileLoader{dec: dec, readFile: os.ReadFile},
		log:    log.Default().WithPrefix("textures"),
	}
	for _, o := range opts {
		o(tp)
	}
	if tp.async != nil {
		tp.async.loader = tp.loader
		tp.async.mailbox = make(chan prefetchResult, 1)
	}
	return tp
}

// LoadInitial fills the active slot with the catalog's current entry,
// probing forward past files that fail.
func (tp *TexturePair) LoadInitial() error {
	n := tp.cat.Len()
	cur := tp.cat.Current()
	for attempt := 0; attempt < n; attempt++ {
		idx := cur + attempt
		ok, err := tp.loadInto(tp.active, idx)
		if err != nil {
			return err
		}
		if ok {
			tp.cat.SetCurrent(idx)
			return nil
		}
	}
	return fmt.Errorf("%w (%d candidates tried)", ErrNoLoadableImage, n)
}

// LoadIntoBack decodes catalog entry index into the back slot. It reports
// false for a per-file failure, which leaves texture state untouched. An
// error is returned only for failures that are not about the file.
func (tp *TexturePair) LoadIntoBack(index int) (bool, error) {
	ok, err := tp.loadInto(1-tp.active, index)
	if ok {
		tp.prefetched = true
		tp.backIndex = index
	}
	return ok, err
}

func (tp *TexturePair) loadInto(slot, index int) (bool, error) {
	path := tp.cat.Path(index)
	if tp.cat.IsBroken(path) {
		return false, nil
	}
	s, err := tp.loader.load(path)
	if err != nil {
		tp.reject(path, err)
		return false, nil
	}
	if err := tp.install(slot, s); err != nil {
		return false, err
	}
	return true, nil
}

func (tp *TexturePair) reject(path string, err error) {
	if errors.Is(err, errBroken) {
		tp.cat.MarkBroken(path)
		tp.log.Warn("marking file broken", "path", path, "err", err)
		return
	}
	tp.log.Warn("skipping file", "path", path, "err", err)
}

func (tp *TexturePair) install(slot int, s *staged) error {
	start := time.Now()
	if err := tp.up.Upload(slot, s.img); err != nil {
		return fmt.Errorf("upload %s to slot %d: %w", s.path, slot, err)
	}
	upload := time.Since(start)

	tp.slots[slot] = Slot{Path: s.path, Width: s.img.Width, Height: s.img.Height, Thumb: s.thumb}
	if tp.stats != nil {
		tp.stats.Record(LoadSample{
			Timestamp: time.Now(),
			Path:      s.path,
			Read:      s.read,
			Decode:    s.decode,
			Upload:    upload,
		})
	}
	tp.log.Debug("loaded", "path", s.path, "slot", slot, "read", s.read, "decode", s.decode, "upload", upload)
	return nil
}

// Advance stages the neighbouring image in the back slot. Forward is a
// no-op when a prefetch already succeeded. Otherwise candidates are probed
// linearly from the current position, each at most once.
func (tp *TexturePair) Advance(dir Direction) error {
	if err := tp.awaitPrefetch(); err != nil {
		return err
	}
	if dir == Forward && tp.prefetched {
		return nil
	}

	n := tp.cat.Len()
	cur := tp.cat.Current()
	for attempt := 1; attempt <= n; attempt++ {
		ok, err := tp.LoadIntoBack(cur + int(dir)*attempt)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	tp.prefetched = false
	return fmt.Errorf("%w (%d candidates tried)", ErrNoLoadableImage, n)
}

// CommitSwap makes the back slot the active one once its fade finished.
func (tp *TexturePair) CommitSwap() {
	tp.active = 1 - tp.active
	tp.prefetched = false
	tp.cat.SetCurrent(tp.backIndex)
	if tp.async != nil {
		tp.async.exhausted = false
	}
}

// FadeFor converts a fade progress into the shader's fixed-slot scalar,
// where 0 shows texture unit 0 and 1 shows texture unit 1.
func (tp *TexturePair) FadeFor(raw float32) float32 {
	return FadeFor(tp.active, raw)
}

func FadeFor(active int, raw float32) float32 {
	if active == 1 {
		return 1 - raw
	}
	return raw
}

func (tp *TexturePair) Active() int { return tp.active }

func (tp *TexturePair) Prefetched() bool { return tp.prefetched }

func (tp *TexturePair) Slots() [2]Slot { return tp.slots }
