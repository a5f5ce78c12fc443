package slideshow

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	DefaultStatsWindow     = 30 * time.Minute
	DefaultMaxStatsSamples = 256
)

// LoadSample is the cost of bringing one file onto the GPU.
type LoadSample struct {
	Timestamp time.Time     `json:"timestamp"`
	Path      string        `json:"path"`
	Read      time.Duration `json:"read"`
	Decode    time.Duration `json:"decode"`
	Upload    time.Duration `json:"upload"`
}

func (s LoadSample) Total() time.Duration { return s.Read + s.Decode + s.Upload }

// LoadStats is a time-windowed history of load samples. The loop writes,
// the web preview reads.
type LoadStats struct {
	Samples []LoadSample  `json:"samples"`
	Window  time.Duration `json:"window"`
	max     int
	mu      sync.RWMutex
}

func NewLoadStats(window time.Duration, max int) *LoadStats {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	if max <= 0 {
		max = DefaultMaxStatsSamples
	}
	return &LoadStats{
		Samples: make([]LoadSample, 0, max),
		Window:  window,
		max:     max,
	}
}

func (s *LoadStats) Record(sample LoadSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Samples = append(s.Samples, sample)
	s.trim(sample.Timestamp)
}

// trim drops samples older than the window and caps the count.
func (s *LoadStats) trim(now time.Time) {
	cutoff := now.Add(-s.Window)
	keep := 0
	for keep < len(s.Samples) && !s.Samples[keep].Timestamp.After(cutoff) {
		keep++
	}
	if keep > 0 {
		s.Samples = append(s.Samples[:0], s.Samples[keep:]...)
	}
	if len(s.Samples) > s.max {
		s.Samples = append(s.Samples[:0], s.Samples[len(s.Samples)-s.max:]...)
	}
}

// Snapshot returns a copy of the current history.
func (s *LoadStats) Snapshot() []LoadSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LoadSample, len(s.Samples))
	copy(out, s.Samples)
	return out
}

// Last returns the most recent sample.
func (s *LoadStats) Last() (LoadSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Samples) == 0 {
		return LoadSample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// Save writes the history to path as JSON.
func (s *LoadStats) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save load stats: %w", err)
	}
	defer file.Close()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := json.NewEncoder(file).Encode(s); err != nil {
		return fmt.Errorf("save load stats: %w", err)
	}
	return nil
}

// Load restores a history written by Save, dropping expired samples. A
// missing file is not an error.
func (s *LoadStats) Load(path string) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	defer file.Close()

	var saved struct {
		Samples []LoadSample `json:"samples"`
	}
	if err := json.NewDecoder(file).Decode(&saved); err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Samples = append(s.Samples[:0], saved.Samples...)
	s.trim(time.Now())
	return nil
}
