// Package monitor implements the host-side dump synchronizer: it discovers
// finalized dump files on the device through a live logcat tail and a
// periodic queue-file poll, pulls them to local storage with a bounded
// worker pool, and deletes them from the device once safely copied.
// Discovery is at-least-once; the tracker de-duplicates, so transfer is
// effectively idempotent per filename.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audiodump/pkg/config"
	"audiodump/pkg/logger"
)

// Device is the transport the monitor drives. pkg/adb provides the real
// implementation; tests substitute a fake.
type Device interface {
	DeviceReady(ctx context.Context) error
	Pull(ctx context.Context, remotePath, localPath string) error
	Cleanup(ctx context.Context, remotePath, queueFile, filename string) error
	ReadQueueFile(ctx context.Context, queueFile string) ([]string, error)
	OpenLogStream(ctx context.Context) (io.ReadCloser, error)
}

// Task is one file transfer waiting for, or under, execution.
type Task struct {
	Filename   string
	EnqueuedAt time.Time
	Attempts   int
}

const taskQueueSize = 256

// Monitor wires the discovery producers, the worker pool, and the stats
// reporter together around one shared task queue.
type Monitor struct {
	cfg     *config.Config
	dev     Device
	log     *logger.Logger
	tracker *tracker
	tasks   chan Task

	// retryWG tracks in-flight retry delay timers so Run does not return
	// while one still holds a task.
	retryWG sync.WaitGroup
}

// New builds a monitor from validated configuration.
func New(cfg *config.Config, dev Device, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.Default()
	}
	return &Monitor{
		cfg:     cfg,
		dev:     dev,
		log:     log.WithField("component", "monitor"),
		tracker: newTracker(),
		tasks:   make(chan Task, taskQueueSize),
	}
}

// Run starts every loop and blocks until the context is cancelled. A clean
// cancellation returns nil; the device preflight failing returns its error.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.dev.DeviceReady(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(m.cfg.Monitor.LocalDir, 0o755); err != nil {
		return fmt.Errorf("failed to create local save directory: %w", err)
	}

	m.log.Info("monitor starting",
		"localDir", m.cfg.Monitor.LocalDir,
		"workers", m.cfg.Monitor.PullWorkers,
		"logcat", m.cfg.Monitor.UseLogcat,
		"pollInterval", m.cfg.Monitor.PollInterval)

	g, ctx := errgroup.WithContext(ctx)

	if m.cfg.Monitor.UseLogcat {
		g.Go(func() error { return m.runTail(ctx) })
	}
	g.Go(func() error { return m.runPoll(ctx) })
	for i := 0; i < m.cfg.Monitor.PullWorkers; i++ {
		id := i
		g.Go(func() error { return m.runWorker(ctx, id) })
	}
	g.Go(func() error { return m.runReporter(ctx) })

	err := g.Wait()
	m.retryWG.Wait()
	m.log.Info("monitor stopped")
	return err
}

// Stats returns a snapshot of the monitor's counters.
func (m *Monitor) Stats() Stats {
	return m.tracker.snapshot()
}

// Summary returns the human-readable statistics report.
func (m *Monitor) Summary() string {
	return m.tracker.summary()
}

// enqueue claims the filename and hands it to the worker pool. Duplicates
// from either discovery channel are dropped here. The channel send happens
// outside the tracker lock.
func (m *Monitor) enqueue(ctx context.Context, source, filename string) {
	if !m.tracker.admit(filename) {
		return
	}
	m.log.Info("queued dump file", "source", source, "file", filename)
	select {
	case m.tasks <- Task{Filename: filename, EnqueuedAt: time.Now()}:
	case <-ctx.Done():
	}
}

// runReporter logs the aggregated counters on a fixed interval.
func (m *Monitor) runReporter(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Monitor.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := m.tracker.snapshot()
			m.log.Info("statistics",
				"queued", s.Queued,
				"pulled", s.Pulled,
				"failed", s.Failed,
				"bytes", s.Bytes,
				"runtime", s.Elapsed.Round(time.Second))
		}
	}
}

// sleepCtx waits for d unless the context ends first. Reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
