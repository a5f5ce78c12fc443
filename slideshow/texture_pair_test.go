package slideshow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/photonicat/photonicat2_slideshow/catalog"
	"github.com/photonicat/photonicat2_slideshow/decoder"
)

// fakeDecoder accepts any file that does not start with "bad".
type fakeDecoder struct {
	calls int
}

func (d *fakeDecoder) Decode(data []byte) (*decoder.Image, error) {
	d.calls++
	if bytes.HasPrefix(data, []byte("bad")) {
		return nil, fmt.Errorf("%w: corrupt", decoder.ErrDecode)
	}
	return &decoder.Image{Pix: make([]byte, 4*2*4), Width: 4, Height: 2, Channels: 4}, nil
}

type fakeUploader struct {
	slots []int
	fail  error
}

func (u *fakeUploader) Upload(slot int, img *decoder.Image) error {
	if u.fail != nil {
		return u.fail
	}
	u.slots = append(u.slots, slot)
	return nil
}

type file struct {
	name, body string
}

type fixture struct {
	dir  string
	cat  *catalog.Catalog
	dec  *fakeDecoder
	up   *fakeUploader
	pair *TexturePair
}

func newFixture(t *testing.T, files []file, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat := catalog.New(dir, ".jpg")
	if err := cat.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	fx := &fixture{dir: dir, cat: cat, dec: &fakeDecoder{}, up: &fakeUploader{}}
	fx.pair = NewTexturePair(cat, fx.dec, fx.up, opts...)
	return fx
}

func (fx *fixture) path(name string) string { return filepath.Join(fx.dir, name) }

func threeGood() []file {
	return []file{{"img1.jpg", "ok"}, {"img2.jpg", "ok"}, {"img3.jpg", "ok"}}
}

func TestLoadInitialSkipsBroken(t *testing.T) {
	fx := newFixture(t, []file{{"img1.jpg", "bad"}, {"img2.jpg", "ok"}})

	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if got := fx.pair.Slots()[0].Path; got != fx.path("img2.jpg") {
		t.Errorf("active slot: got %s", got)
	}
	if fx.cat.Current() != 1 {
		t.Errorf("Current: got %d, want 1", fx.cat.Current())
	}
	if !fx.cat.IsBroken(fx.path("img1.jpg")) {
		t.Error("img1 not marked broken")
	}
	if fx.pair.Prefetched() {
		t.Error("initial load must not count as prefetch")
	}
}

func TestLoadInitialNothingLoadable(t *testing.T) {
	fx := newFixture(t, []file{{"a.jpg", "bad"}, {"b.jpg", "bad"}, {"c.jpg", "bad"}})

	err := fx.pair.LoadInitial()
	if !errors.Is(err, ErrNoLoadableImage) {
		t.Fatalf("got %v, want ErrNoLoadableImage", err)
	}
	if fx.dec.calls != 3 {
		t.Errorf("decode calls: got %d, want 3", fx.dec.calls)
	}
}

func TestAdvanceProbesPastCorruptFile(t *testing.T) {
	fx := newFixture(t, []file{{"img1.jpg", "ok"}, {"img2.jpg", "bad"}, {"img3.jpg", "ok"}})
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}

	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := fx.pair.Slots()[1].Path; got != fx.path("img3.jpg") {
		t.Errorf("back slot: got %s, want img3", got)
	}
	if !fx.cat.IsBroken(fx.path("img2.jpg")) {
		t.Error("img2 not marked broken")
	}

	if err := fx.cat.Scan(); err != nil {
		t.Fatal(err)
	}
	if fx.cat.Len() != 2 {
		t.Errorf("rescan: Len %d, want 2", fx.cat.Len())
	}
}

func TestAdvanceForwardShortCircuits(t *testing.T) {
	fx := newFixture(t, threeGood())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatal(err)
	}
	calls := fx.dec.calls

	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatal(err)
	}
	if fx.dec.calls != calls {
		t.Errorf("second Advance decoded again: %d calls, want %d", fx.dec.calls, calls)
	}
}

func TestAdvanceBackwardWraps(t *testing.T) {
	fx := newFixture(t, threeGood())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	if err := fx.pair.Advance(Backward); err != nil {
		t.Fatal(err)
	}
	if got := fx.pair.Slots()[1].Path; got != fx.path("img3.jpg") {
		t.Errorf("back slot: got %s, want img3", got)
	}
}

func TestCyclicTraversal(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			files := make([]file, n)
			for i := range files {
				files[i] = file{fmt.Sprintf("img%d.jpg", i), "ok"}
			}
			fx := newFixture(t, files)
			if err := fx.pair.LoadInitial(); err != nil {
				t.Fatal(err)
			}
			start := fx.cat.Current()

			for i := 1; i <= n; i++ {
				if err := fx.pair.Advance(Forward); err != nil {
					t.Fatalf("round %d: %v", i, err)
				}
				fx.pair.CommitSwap()
				if got, want := fx.cat.Current(), (start+i)%n; got != want {
					t.Fatalf("round %d: Current %d, want %d", i, got, want)
				}
			}
			if fx.cat.Current() != start {
				t.Errorf("after %d rounds: Current %d, want %d", n, fx.cat.Current(), start)
			}
		})
	}
}

func TestAdvanceTerminatesWithinCatalogLength(t *testing.T) {
	for _, dir := range []Direction{Forward, Backward} {
		for n := 1; n <= 5; n++ {
			for k := 0; k < n; k++ {
				t.Run(fmt.Sprintf("%v/n=%d/broken=%d", dir, n, k), func(t *testing.T) {
					// the first file is good so LoadInitial succeeds; the
					// k files next to it in the direction of travel are
					// corrupt.
					files := make([]file, n)
					for i := range files {
						body := "ok"
						if dir == Forward && i > 0 && i <= k {
							body = "bad"
						}
						if dir == Backward && i >= n-k {
							body = "bad"
						}
						files[i] = file{fmt.Sprintf("img%d.jpg", i), body}
					}
					fx := newFixture(t, files)
					if err := fx.pair.LoadInitial(); err != nil {
						t.Fatal(err)
					}
					fx.dec.calls = 0

					if err := fx.pair.Advance(dir); err != nil {
						t.Fatalf("Advance: %v", err)
					}
					if fx.dec.calls > n {
						t.Errorf("decode calls: %d > %d", fx.dec.calls, n)
					}
					if fx.cat.BrokenCount() != k {
						t.Errorf("broken: got %d, want %d", fx.cat.BrokenCount(), k)
					}
				})
			}
		}
	}
}

func TestAdvanceFailsWhenEverythingIsBroken(t *testing.T) {
	for _, dir := range []Direction{Forward, Backward} {
		t.Run(dir.String(), func(t *testing.T) {
			fx := newFixture(t, threeGood())
			if err := fx.pair.LoadInitial(); err != nil {
				t.Fatal(err)
			}
			for _, name := range []string{"img1.jpg", "img2.jpg", "img3.jpg"} {
				if err := os.WriteFile(fx.path(name), []byte("bad"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			fx.dec.calls = 0

			err := fx.pair.Advance(dir)
			if !errors.Is(err, ErrNoLoadableImage) {
				t.Fatalf("got %v, want ErrNoLoadableImage", err)
			}
			if fx.dec.calls != 3 {
				t.Errorf("decode calls: got %d, want 3", fx.dec.calls)
			}
			if fx.pair.Prefetched() {
				t.Error("failed advance left prefetched set")
			}
		})
	}
}

func TestReadErrorSkipsWithoutMarkingBroken(t *testing.T) {
	var fx *fixture
	readFile := func(path string) ([]byte, error) {
		if path == fx.path("img2.jpg") {
			return nil, os.ErrPermission
		}
		return os.ReadFile(path)
	}
	fx = newFixture(t, threeGood(), WithReadFile(readFile))
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}

	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatal(err)
	}
	if got := fx.pair.Slots()[1].Path; got != fx.path("img3.jpg") {
		t.Errorf("back slot: got %s, want img3", got)
	}
	if fx.cat.IsBroken(fx.path("img2.jpg")) {
		t.Error("unreadable file must not be marked broken")
	}
}

func TestUploadErrorIsFatal(t *testing.T) {
	fx := newFixture(t, threeGood())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	gpu := errors.New("out of memory")
	fx.up.fail = gpu

	err := fx.pair.Advance(Forward)
	if !errors.Is(err, gpu) {
		t.Fatalf("got %v, want upload error", err)
	}
	if fx.cat.BrokenCount() != 0 {
		t.Error("upload failure must not mark files broken")
	}
}

func TestFadeFor(t *testing.T) {
	tests := []struct {
		active int
		raw    float32
		want   float32
	}{
		{0, 0, 0},
		{0, 0.25, 0.25},
		{0, 1, 1},
		{1, 0, 1},
		{1, 0.25, 0.75},
		{1, 1, 0},
	}
	for _, tt := range tests {
		if got := FadeFor(tt.active, tt.raw); got != tt.want {
			t.Errorf("FadeFor(%d, %v) = %v; want %v", tt.active, tt.raw, got, tt.want)
		}
	}
}

func TestCommitSwap(t *testing.T) {
	fx := newFixture(t, threeGood())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatal(err)
	}
	// at the end of a fade the back slot is fully visible
	before := fx.pair.FadeFor(1)

	fx.pair.CommitSwap()
	if fx.pair.Active() != 1 {
		t.Errorf("Active: got %d, want 1", fx.pair.Active())
	}
	if fx.pair.Prefetched() {
		t.Error("Prefetched still set after swap")
	}
	if fx.cat.CurrentPath() != fx.path("img2.jpg") {
		t.Errorf("current: got %s, want img2", fx.cat.CurrentPath())
	}
	if after := fx.pair.FadeFor(0); after != before {
		t.Errorf("visible slot jumped across swap: %v then %v", before, after)
	}
	if want := []int{0, 1}; len(fx.up.slots) != 2 || fx.up.slots[0] != want[0] || fx.up.slots[1] != want[1] {
		t.Errorf("uploads: got %v, want %v", fx.up.slots, want)
	}
}

func TestAsyncPrefetchMarksBrokenOnLoopThread(t *testing.T) {
	fx := newFixture(t, []file{{"img1.jpg", "ok"}, {"img2.jpg", "bad"}, {"img3.jpg", "ok"}}, WithAsyncDecode())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}

	if err := fx.pair.StartPrefetch(); err != nil {
		t.Fatal(err)
	}
	if fx.cat.IsBroken(fx.path("img2.jpg")) {
		t.Error("broken set touched before the result was collected")
	}
	// Advance collects the in-flight result instead of probing again.
	if err := fx.pair.Advance(Forward); err != nil {
		t.Fatal(err)
	}
	if !fx.pair.Prefetched() {
		t.Fatal("prefetch result not installed")
	}
	if got := fx.pair.Slots()[1].Path; got != fx.path("img3.jpg") {
		t.Errorf("back slot: got %s, want img3", got)
	}
	if !fx.cat.IsBroken(fx.path("img2.jpg")) {
		t.Error("img2 not marked broken")
	}
	if fx.dec.calls != 3 {
		t.Errorf("decode calls: got %d, want 3", fx.dec.calls)
	}
}

func TestAsyncPrefetchExhausted(t *testing.T) {
	fx := newFixture(t, []file{{"img1.jpg", "ok"}, {"img2.jpg", "bad"}}, WithAsyncDecode())
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fx.path("img1.jpg"), []byte("bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fx.pair.StartPrefetch(); err != nil {
		t.Fatal(err)
	}
	if err := fx.pair.awaitPrefetch(); err != nil {
		t.Fatal(err)
	}
	calls := fx.dec.calls

	// no new probe until the next swap
	if err := fx.pair.StartPrefetch(); err != nil {
		t.Fatal(err)
	}
	if fx.pair.async.inFlight {
		t.Error("probe restarted after exhausting the catalog")
	}
	if err := fx.pair.Advance(Forward); !errors.Is(err, ErrNoLoadableImage) {
		t.Errorf("Advance: got %v, want ErrNoLoadableImage", err)
	}
	if fx.dec.calls != calls {
		t.Errorf("broken files decoded again: %d calls, want %d", fx.dec.calls, calls)
	}
}

func TestThumbnails(t *testing.T) {
	fx := newFixture(t, threeGood(), WithThumbnails(2))
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	thumb := fx.pair.Slots()[0].Thumb
	if thumb == nil {
		t.Fatal("no thumbnail")
	}
	if b := thumb.Bounds(); b.Dx() != 2 || b.Dy() != 1 {
		t.Errorf("thumbnail size: got %v, want 2x1", b)
	}
}

func TestLoadStatsRecorded(t *testing.T) {
	stats := NewLoadStats(0, 0)
	fx := newFixture(t, threeGood(), WithStats(stats))
	if err := fx.pair.LoadInitial(); err != nil {
		t.Fatal(err)
	}
	last, ok := stats.Last()
	if !ok || last.Path != fx.path("img1.jpg") {
		t.Errorf("Last: got %+v, %v", last, ok)
	}
}
