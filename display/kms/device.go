// Package kms drives the direct-to-display path: GBM surfaces rendered by
// EGL and scanned out with atomic KMS commits, ordered by explicit fences
// in both directions.
//
// The Presenter holds the sequencing and ownership rules and talks to the
// hardware through Device, which the hw subpackage implements with cgo.
package kms

import "time"

// Sync is an EGL sync object handle.
type Sync uintptr

// Buffer is a locked GBM front buffer.
type Buffer uintptr

// Device is the driver surface the Presenter sequences. File descriptors
// passed in or out follow the comments on each method.
type Device interface {
	Size() (width, height int)

	// ImportFence wraps a native fence fd in a sync object. On success the
	// sync owns fd; on failure the caller still does.
	ImportFence(fd int) (Sync, error)
	// CreateFence inserts a native fence into the GPU command stream.
	CreateFence() (Sync, error)
	// ExportFence dups the fd of a flushed native fence. The caller owns it.
	ExportFence(s Sync) (int, error)
	DestroySync(s Sync)
	// GPUWait queues a server-side wait; it does not block the CPU.
	GPUWait(s Sync) error
	// ClientWait blocks up to timeout and reports whether s signaled.
	ClientWait(s Sync, timeout time.Duration) (bool, error)

	SwapBuffers() error
	LockFrontBuffer() (Buffer, error)
	ReleaseBuffer(b Buffer)
	// Framebuffer returns the KMS framebuffer for b, creating it once.
	Framebuffer(b Buffer) (uint32, error)

	// Commit flips fb onto the plane once inFence signals. modeset allows
	// a full mode set. The returned out-fence fd is owned by the caller.
	Commit(fb uint32, inFence int, modeset bool) (outFence int, err error)
	CloseFD(fd int)

	Close() error
}
