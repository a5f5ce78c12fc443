// Package fetch keeps the image folder in step with a remote image
// service. Files appear atomically so the catalog never sees a partial
// download.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-ping/ping"
	"github.com/gofiber/fiber/v2"
)

var ErrUnreachable = errors.New("fetch: endpoint unreachable")

type Config struct {
	Endpoint string
	Dir      string
	Ext      string
	Interval time.Duration
	Width    int
	Height   int
	Ping     bool
	Timeout  time.Duration
	// Caption burns the X-Caption lines the service sends into the image.
	Caption  bool
}

// Result counts the changes made by one sync.
type Result struct {
	Added   int
	Removed int
	Failed  int
}

type imageList struct {
	UUID []string `json:"uuid"`
}

type Syncer struct {
	cfg  Config
	log  *log.Logger
	ping func(host string) (time.Duration, error)
}

func New(cfg Config, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.Default().WithPrefix("fetch")
	}
	if cfg.Ext == "" {
		cfg.Ext = ".jpg"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Syncer{cfg: cfg, log: logger, ping: pingICMP}
}

// Run syncs once immediately and then every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		res, err := s.Sync(ctx)
		if err != nil {
			s.log.Warn("sync failed", "err", err)
		} else if res.Added+res.Removed+res.Failed > 0 {
			s.log.Info("synced", "added", res.Added, "removed", res.Removed, "failed", res.Failed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sync removes local files the service no longer lists and downloads the
// ones it lists that are missing. An empty listing changes nothing.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	var res Result
	if s.cfg.Ping {
		if err := s.reachable(); err != nil {
			return res, err
		}
	}
	remote, err := s.list()
	if err != nil {
		return res, err
	}
	if len(remote) == 0 {
		return res, nil
	}
	local, err := s.localIDs()
	if err != nil {
		return res, err
	}

	wanted := make(map[string]bool, len(remote))
	for _, id := range remote {
		wanted[id] = true
	}
	for id := range local {
		if wanted[id] {
			continue
		}
		if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove image", "id", id, "err", err)
			continue
		}
		res.Removed++
	}
	for _, id := range remote {
		if local[id] {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err := s.download(id); err != nil {
			s.log.Warn("failed to download image", "id", id, "err", err)
			res.Failed++
			continue
		}
		res.Added++
	}
	return res, nil
}

func (s *Syncer) reachable() error {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("fetch: endpoint: %w", err)
	}
	rtt, err := s.ping(u.Hostname())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	s.log.Debug("endpoint reachable", "host", u.Hostname(), "rtt", rtt)
	return nil
}

func (s *Syncer) list() ([]string, error) {
	var l imageList
	code, _, errs := fiber.Get(s.cfg.Endpoint + "/images").Timeout(s.cfg.Timeout).Struct(&l)
	if len(errs) > 0 {
		return nil, fmt.Errorf("fetch: list images: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("fetch: list images: status %d", code)
	}
	ids := l.UUID[:0]
	for _, id := range l.UUID {
		if validID(id) {
			ids = append(ids, id)
		} else {
			s.log.Warn("ignoring bad image id", "id", id)
		}
	}
	return ids, nil
}

// validID keeps ids that name a plain file inside the folder.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (s *Syncer) localIDs() (map[string]bool, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", s.cfg.Dir, err)
	}
	ids := make(map[string]bool)
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != s.cfg.Ext {
			continue
		}
		ids[strings.TrimSuffix(e.Name(), s.cfg.Ext)] = true
	}
	return ids, nil
}

func (s *Syncer) pathFor(id string) string {
	return filepath.Join(s.cfg.Dir, id+s.cfg.Ext)
}

func (s *Syncer) download(id string) error {
	u := fmt.Sprintf("%s/image/%s?w=%d&h=%d", s.cfg.Endpoint, url.PathEscape(id), s.cfg.Width, s.cfg.Height)
	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)
	code, body, errs := fiber.Get(u).Timeout(s.cfg.Timeout).SetResponse(resp).Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("status %d", code)
	}
	if s.cfg.Caption {
		body = s.caption(id, body, headerValues(resp, captionHeader))
	}

	tmp, err := os.CreateTemp(s.cfg.Dir, "."+id+"-*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.pathFor(id))
}

// caption keeps the downloaded bytes when the caption cannot be drawn.
func (s *Syncer) caption(id string, body []byte, lines []string) []byte {
	out, err := captionJPEG(body, lines)
	if err != nil {
		s.log.Warn("image left without caption", "id", id, "err", err)
		return body
	}
	return out
}

func headerValues(resp *fiber.Response, key string) []string {
	var vals []string
	resp.Header.VisitAll(func(k, v []byte) {
		if strings.EqualFold(string(k), key) {
			vals = append(vals, string(v))
		}
	})
	return vals
}

// pingICMP sends a single echo request. Raw ICMP usually needs root.
func pingICMP(host string) (time.Duration, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	if err := pinger.Run(); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no reply from %s", host)
	}
	return stats.AvgRtt, nil
}
