package kms

import (
	"errors"
	"fmt"
)

var (
	// ErrFenceTimeout means the previous page flip did not complete
	// within the configured bound.
	ErrFenceTimeout = errors.New("kms: display fence wait timed out")
	// ErrFenceState is a sequencing bug: a fence was used out of order.
	ErrFenceState = errors.New("kms: invalid fence transition")
	// ErrNoOutFence means the driver accepted a commit without handing
	// back an out-fence, so the flip cannot be waited on.
	ErrNoOutFence = errors.New("kms: commit returned no out-fence")
)

type FenceState int

const (
	FenceNone FenceState = iota
	FencePending
	FenceSignaled
	FenceConsumed
)

func (s FenceState) String() string {
	switch s {
	case FenceNone:
		return "none"
	case FencePending:
		return "pending"
	case FenceSignaled:
		return "signaled"
	case FenceConsumed:
		return "consumed"
	}
	return fmt.Sprintf("fence(%d)", int(s))
}

var fenceTransitions = map[FenceState][]FenceState{
	FenceNone:     {FencePending},
	FencePending:  {FenceSignaled},
	FenceSignaled: {FenceConsumed},
	FenceConsumed: {FencePending},
}

// displayFence tracks the out-fence of the last atomic commit. The fd is
// owned here until it is imported, after which the sync object owns it.
type displayFence struct {
	state FenceState
	fd    int
	sync  Sync
}

func newDisplayFence() displayFence {
	return displayFence{fd: -1}
}

func (f *displayFence) to(next FenceState) error {
	for _, allowed := range fenceTransitions[f.state] {
		if allowed == next {
			f.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrFenceState, f.state, next)
}

// committable reports whether a new commit may be issued.
func (f *displayFence) committable() bool {
	return f.state == FenceNone || f.state == FenceConsumed
}
