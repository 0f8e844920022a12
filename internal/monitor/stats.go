package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time view of the monitor's counters.
type Stats struct {
	Queued  int
	Pulled  int
	Failed  int
	Bytes   int64
	Elapsed time.Duration
}

// tracker holds everything the discovery and transfer loops share: the
// processed set (files already transferred and deleted), the outstanding set
// (files queued or in flight, including permanently failed ones for this
// run), and the statistics counters. One lock guards all of it; the lock is
// never held across a device call.
type tracker struct {
	mu          sync.Mutex
	processed   map[string]struct{}
	outstanding map[string]struct{}
	queued      int
	pulled      int
	failed      int
	bytes       int64
	start       time.Time
}

func newTracker() *tracker {
	return &tracker{
		processed:   make(map[string]struct{}),
		outstanding: make(map[string]struct{}),
		start:       time.Now(),
	}
}

// admit reports whether filename is new to this run and, if so, claims it.
// Duplicate notifications across the two discovery channels funnel through
// here, so the same file is only ever queued once.
func (t *tracker) admit(filename string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.processed[filename]; ok {
		return false
	}
	if _, ok := t.outstanding[filename]; ok {
		return false
	}
	t.outstanding[filename] = struct{}{}
	t.queued++
	return true
}

// markProcessed records a successful transfer and delete. The processed set
// only grows; it is the idempotency ledger for the process lifetime.
func (t *tracker) markProcessed(filename string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.outstanding, filename)
	t.processed[filename] = struct{}{}
	t.pulled++
	t.bytes += size
}

// markFailed records a permanently failed transfer. The file stays in the
// outstanding set so this run never retries it, but it is not processed, so
// a fresh run may pick it up again.
func (t *tracker) markFailed(filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Queued:  t.queued,
		Pulled:  t.pulled,
		Failed:  t.failed,
		Bytes:   t.bytes,
		Elapsed: time.Since(t.start),
	}
}

// summary renders the human-readable report printed periodically and at
// shutdown.
func (t *tracker) summary() string {
	s := t.snapshot()

	speed := "N/A"
	if secs := s.Elapsed.Seconds(); secs > 0 {
		speed = humanize.Bytes(uint64(float64(s.Bytes)/secs)) + "/s"
	}

	h := int(s.Elapsed.Hours())
	m := int(s.Elapsed.Minutes()) % 60
	sec := int(s.Elapsed.Seconds()) % 60

	return fmt.Sprintf(
		"Statistics Summary:\n"+
			"  Runtime: %02d:%02d:%02d\n"+
			"  Files Queued: %d\n"+
			"  Files Pulled: %d\n"+
			"  Files Failed: %d\n"+
			"  Total Transferred: %s\n"+
			"  Average Speed: %s",
		h, m, sec, s.Queued, s.Pulled, s.Failed, humanize.Bytes(uint64(s.Bytes)), speed)
}
