package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Display() != time.Minute {
		t.Errorf("display %v", cfg.Display())
	}
	if cfg.Fade() != 500*time.Millisecond {
		t.Errorf("fade %v", cfg.Fade())
	}
	if cfg.FolderPath != "/tmp" || cfg.Extension != ".jpg" || cfg.LEDGPIO != 23 {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Platform != "kms" || cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("got %+v", cfg)
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("IMG_DISPLAY_TIME", "2.5")
	t.Setenv("IMG_FADE_TIME", "0")
	t.Setenv("IMG_FOLDER_PATH", "/srv/photos")
	t.Setenv("LED_PAUSE_INDICATOR_GPIO", "-1")
	t.Setenv("PLATFORM", "sdl")
	t.Setenv("ASYNC_DECODE", "true")
	t.Setenv("FENCE_TIMEOUT", "250ms")
	t.Setenv("SYNC_CAPTION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Display() != 2500*time.Millisecond || cfg.Fade() != 0 {
		t.Errorf("timing %v %v", cfg.Display(), cfg.Fade())
	}
	if cfg.FolderPath != "/srv/photos" || cfg.LEDGPIO != -1 || cfg.Platform != "sdl" {
		t.Errorf("got %+v", cfg)
	}
	if !cfg.AsyncDecode || cfg.FenceTimeout != 250*time.Millisecond || !cfg.SyncCaption {
		t.Errorf("got %+v", cfg)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slideshow.yaml")
	data := "img_display_time: 10\nhttp_addr: \":8081\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":9000")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Display() != 10*time.Second {
		t.Errorf("display %v", cfg.Display())
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("environment should win, got %q", cfg.HTTPAddr)
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestInvalid(t *testing.T) {
	tests := map[string]string{
		"IMG_DISPLAY_TIME": "-1",
		"IMG_FADE_TIME":    "-0.1",
		"PLATFORM":         "x11",
		"POLL_INTERVAL":    "0s",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); !errors.Is(err, ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}
