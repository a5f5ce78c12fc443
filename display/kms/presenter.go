package kms

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Presenter implements display.Platform on top of a Device.
//
// Per frame: Acquire makes the GPU wait on the previous flip's out-fence
// so rendering never touches a buffer still being scanned out. Present
// fences the GPU work, swaps, locks the new front buffer, waits on the CPU
// for the previous flip, commits with the GPU fence as in-fence and then
// releases the buffer that just left the screen.
type Presenter struct {
	dev     Device
	timeout time.Duration
	log     *log.Logger

	fence    displayFence
	imported bool

	front    Buffer
	hasFront bool

	modesetDone bool
	commits     uint64
}

// NewPresenter takes ownership of dev. A timeout <= 0 waits for the
// display fence without bound.
func NewPresenter(dev Device, timeout time.Duration, logger *log.Logger) *Presenter {
	if logger == nil {
		logger = log.Default().WithPrefix("kms")
	}
	return &Presenter{
		dev:     dev,
		timeout: timeout,
		log:     logger,
		fence:   newDisplayFence(),
	}
}

func (p *Presenter) Size() (int, int) { return p.dev.Size() }

func (p *Presenter) FenceState() FenceState { return p.fence.state }

func (p *Presenter) Commits() uint64 { return p.commits }

func (p *Presenter) Acquire() error {
	if p.fence.state != FencePending || p.imported {
		return nil
	}
	if err := p.importFence(); err != nil {
		return err
	}
	if err := p.dev.GPUWait(p.fence.sync); err != nil {
		return fmt.Errorf("kms: gpu wait on display fence: %w", err)
	}
	return nil
}

func (p *Presenter) importFence() error {
	s, err := p.dev.ImportFence(p.fence.fd)
	if err != nil {
		return fmt.Errorf("kms: import display fence: %w", err)
	}
	p.fence.fd = -1
	p.fence.sync = s
	p.imported = true
	return nil
}

func (p *Presenter) Present() error {
	gpu, err := p.dev.CreateFence()
	if err != nil {
		return fmt.Errorf("kms: create gpu fence: %w", err)
	}
	if err := p.dev.SwapBuffers(); err != nil {
		p.dev.DestroySync(gpu)
		return fmt.Errorf("kms: swap buffers: %w", err)
	}
	// the fence is flushed by the swap, so its fd can be taken now
	inFence, err := p.dev.ExportFence(gpu)
	p.dev.DestroySync(gpu)
	if err != nil {
		return fmt.Errorf("kms: export gpu fence: %w", err)
	}
	defer p.dev.CloseFD(inFence)

	bo, err := p.dev.LockFrontBuffer()
	if err != nil {
		return fmt.Errorf("kms: lock front buffer: %w", err)
	}
	fb, err := p.dev.Framebuffer(bo)
	if err != nil {
		p.dev.ReleaseBuffer(bo)
		return fmt.Errorf("kms: framebuffer: %w", err)
	}

	if err := p.waitDisplay(); err != nil {
		p.dev.ReleaseBuffer(bo)
		return err
	}
	out, err := p.commit(fb, inFence)
	if err != nil {
		p.dev.ReleaseBuffer(bo)
		return err
	}

	if p.hasFront {
		p.dev.ReleaseBuffer(p.front)
	}
	p.front, p.hasFront = bo, true
	if out < 0 {
		// the fence stays consumed; nothing can be imported from -1
		return fmt.Errorf("%w (fb %d)", ErrNoOutFence, fb)
	}
	p.fence.fd = out
	return p.fence.to(FencePending)
}

// waitDisplay blocks until the previous flip completed. Atomic rejects a
// commit while another one is still queued.
func (p *Presenter) waitDisplay() error {
	if p.fence.state != FencePending {
		return nil
	}
	if !p.imported {
		if err := p.importFence(); err != nil {
			return err
		}
	}
	ok, err := p.dev.ClientWait(p.fence.sync, p.timeout)
	if err != nil {
		return fmt.Errorf("kms: wait display fence: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, p.timeout)
	}
	if err := p.fence.to(FenceSignaled); err != nil {
		return err
	}
	p.dev.DestroySync(p.fence.sync)
	p.fence.sync = 0
	p.imported = false
	return p.fence.to(FenceConsumed)
}

func (p *Presenter) commit(fb uint32, inFence int) (int, error) {
	if !p.fence.committable() {
		return -1, fmt.Errorf("%w: commit with display fence %s", ErrFenceState, p.fence.state)
	}
	modeset := !p.modesetDone
	out, err := p.dev.Commit(fb, inFence, modeset)
	if err != nil {
		p.log.Warn("atomic commit failed, retrying", "err", err, "modeset", modeset)
		out, err = p.dev.Commit(fb, inFence, modeset)
	}
	if err != nil {
		return -1, fmt.Errorf("kms: atomic commit: %w", err)
	}
	if modeset {
		p.log.Info("mode set", "fb", fb)
	}
	p.modesetDone = true
	p.commits++
	return out, nil
}

// Close releases every fence and buffer still held, then the device.
func (p *Presenter) Close() error {
	if p.imported {
		p.dev.DestroySync(p.fence.sync)
		p.fence.sync = 0
		p.imported = false
	}
	if p.fence.fd >= 0 {
		p.dev.CloseFD(p.fence.fd)
		p.fence.fd = -1
	}
	if p.hasFront {
		p.dev.ReleaseBuffer(p.front)
		p.hasFront = false
	}
	return p.dev.Close()
}
