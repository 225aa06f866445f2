package buffer

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"latchdb/types"
)

// Stats is a point-in-time snapshot of one instance's occupancy, used for
// logging and the demo CLI rather than for any control-flow decision.
type Stats struct {
	Resident int
	Pinned   int
	Dirty    int
	Capacity int
}

// Stats returns a snapshot of this instance. Unlike every control-path
// method above, this briefly locks the pool purely to read.
func (b *Instance) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{Resident: len(b.pageTbl), Capacity: len(b.frames)}
	for id := range b.pageTbl {
		frame := b.pageTbl[id]
		fr := &b.frames[frame]
		fr.RLock()
		if fr.PinCount > 0 {
			s.Pinned++
		}
		if fr.IsDirty {
			s.Dirty++
		}
		fr.RUnlock()
	}
	return s
}

// String renders a human-readable summary, e.g. for startup/shutdown logs:
// "42/128 pages resident (12 kB dirty), 5 pinned" for 3 dirty pages.
func (s Stats) String() string {
	dirtyBytes := uint64(s.Dirty) * uint64(types.PageSize)
	return fmt.Sprintf("%d/%d pages resident (%s dirty), %d pinned",
		s.Resident, s.Capacity, humanize.Bytes(dirtyBytes), s.Pinned)
}
