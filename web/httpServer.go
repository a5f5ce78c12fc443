// Package web serves a small control page: JSON status, remote commands
// and a PNG preview of the screen.
package web

import (
	"bytes"
	"image/png"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"github.com/photonicat/photonicat2_slideshow/slideshow"
)

const indexPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>slideshow</title></head>
<body style="background:#111;color:#ddd;font-family:sans-serif">
<img id="frame" src="/frame" width="320" height="240"><br>
<button onclick="send('prev')">prev</button>
<button onclick="send('pause')">pause</button>
<button onclick="send('next')">next</button>
<pre id="status"></pre>
<script>
function send(c){fetch('/control',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({command:c})})}
setInterval(function(){
 document.getElementById('frame').src='/frame?'+Date.now();
 fetch('/status').then(r=>r.json()).then(s=>{document.getElementById('status').textContent=JSON.stringify(s,null,1)});
},1000);
</script></body></html>`

// Snapshot is the body of GET /status.
type Snapshot struct {
	slideshow.Status
	FPS      float64              `json:"fps"`
	LastLoad *slideshow.LoadSample `json:"last_load,omitempty"`
}

type controlRequest struct {
	Command string `json:"command"`
}

// Server holds the latest published status. The render loop publishes,
// fiber handlers read.
type Server struct {
	app      *fiber.App
	stats    *slideshow.LoadStats
	commands chan slideshow.Command
	log      *log.Logger

	mu     sync.RWMutex
	status slideshow.Status
	fps    float64
}

func New(stats *slideshow.LoadStats, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default().WithPrefix("web")
	}
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		stats:    stats,
		commands: make(chan slideshow.Command, 8),
		log:      logger,
	}
	s.app.Get("/", s.indexHandler)
	s.app.Get("/status", s.statusHandler)
	s.app.Post("/control", s.controlHandler)
	s.app.Get("/frame", s.serveFrame)
	return s
}

// Publish replaces the snapshot served to clients.
func (s *Server) Publish(st slideshow.Status, fps float64) {
	s.mu.Lock()
	s.status = st
	s.fps = fps
	s.mu.Unlock()
}

// Commands carries remote commands to the loop.
func (s *Server) Commands() <-chan slideshow.Command { return s.commands }

// Listen blocks until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("starting http server", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) snapshot() (slideshow.Status, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.fps
}

func (s *Server) indexHandler(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(indexPage)
}

func (s *Server) statusHandler(c *fiber.Ctx) error {
	st, fps := s.snapshot()
	snap := Snapshot{Status: st, FPS: fps}
	if s.stats != nil {
		if last, ok := s.stats.Last(); ok {
			snap.LastLoad = &last
		}
	}
	return c.JSON(snap)
}

func (s *Server) controlHandler(c *fiber.Ctx) error {
	var req controlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid JSON")
	}
	cmd, err := slideshow.ParseCommand(req.Command)
	if err != nil || cmd == slideshow.Quit {
		return c.Status(fiber.StatusBadRequest).SendString("Unknown command")
	}
	select {
	case s.commands <- cmd:
	default:
		return c.Status(fiber.StatusServiceUnavailable).SendString("Command queue full")
	}
	s.log.Debug("remote command", "cmd", cmd, "from", c.IP())
	return c.SendString("OK")
}

func (s *Server) serveFrame(c *fiber.Ctx) error {
	st, fps := s.snapshot()
	var samples []slideshow.LoadSample
	if s.stats != nil {
		samples = s.stats.Snapshot()
	}
	frame := Preview(st, samples, fps)

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode image")
	}
	c.Set("Content-Type", "image/png")
	c.Set("Content-Length", strconv.Itoa(buf.Len()))
	return c.Send(buf.Bytes())
}
