package dump

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	apperrors "audiodump/pkg/errors"
	"audiodump/pkg/logger"
)

// NotifyPrefix tags the completion line emitted on the device's diagnostic
// stream. The host monitor matches on this exact prefix.
const NotifyPrefix = "AUDIO_DUMP_READY:"

// QueueFileName is the append-only completion log kept next to the dump
// files, one finalized filename per line. It survives process restarts and
// backs the host's polling discovery channel.
const QueueFileName = ".queue"

// DefaultDumpDir is where dump files land when no directory is configured.
const DefaultDumpDir = "/data/vendor/audio_dump"

const timestampLayout = "20060102_150405"

// ManagerConfig configures a Manager. Zero values fall back to defaults.
type ManagerConfig struct {
	// Dir is the dump directory, created lazily on first session.
	Dir string
	// QueueFile overrides the queue file path (default Dir/.queue).
	QueueFile string
	// Limits is applied to every Writer the manager creates.
	Limits Limits
	// Notify receives one NotifyPrefix line per completed file. Defaults to
	// stdout, the process's diagnostic stream.
	Notify io.Writer
	// Logger, if nil, falls back to the package default.
	Logger *logger.Logger
}

// Manager is the process-wide gate and factory for dump sessions. It owns
// the shared session counter, the dump directory, and the completion fan-out
// (memory queue, persisted queue file, live notify line). One instance is
// constructed at process start and handed to every stream that may dump.
type Manager struct {
	dir       string
	queuePath string
	limits    Limits
	notify    io.Writer
	log       *logger.Logger

	counter atomic.Uint64
	enabled [2]atomic.Bool

	mu          sync.Mutex
	initialized bool
	completed   []string
}

// NewManager builds a manager. Dumping starts disabled for both directions;
// call SetEnabled to open the gate.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDumpDir
	}
	if cfg.QueueFile == "" {
		cfg.QueueFile = filepath.Join(cfg.Dir, QueueFileName)
	}
	if cfg.Notify == nil {
		cfg.Notify = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Manager{
		dir:       cfg.Dir,
		queuePath: cfg.QueueFile,
		limits:    cfg.Limits,
		notify:    cfg.Notify,
		log:       cfg.Logger.WithField("component", "dump-manager"),
	}
}

// SetEnabled toggles dumping for one direction at runtime. Streams that are
// already dumping keep their session; the toggle only gates new sessions.
func (m *Manager) SetEnabled(d Direction, on bool) {
	m.enabled[directionIndex(d)].Store(on)
}

// Enabled reports the current gate for the direction. Callers poll this at
// stream-open time; it is never cached beyond a single check.
func (m *Manager) Enabled(d Direction) bool {
	return m.enabled[directionIndex(d)].Load()
}

// CreateSession allocates the next session counter and opens a Writer for
// the stream. Returns ErrDumpDisabled when the gate is off. Safe to call
// concurrently from multiple stream threads.
func (m *Manager) CreateSession(d Direction) (*Writer, error) {
	if !m.Enabled(d) {
		return nil, apperrors.ErrDumpDisabled
	}

	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}

	counter := m.counter.Add(1)
	timestamp := time.Now().Format(timestampLayout)

	w, err := NewWriter(d, m.dir, timestamp, counter, m.limits, m.OnFileComplete, m.log)
	if err != nil {
		return nil, err
	}
	m.log.Info("created dump session", "direction", d.String(), "counter", counter)
	return w, nil
}

// OnFileComplete records one finalized file across all three channels:
// the in-memory completed list, one appended line in the queue file, and one
// live notify line. Called exactly once per finalized file by its Writer.
func (m *Manager) OnFileComplete(filename string) {
	m.mu.Lock()
	m.completed = append(m.completed, filename)
	if err := m.appendQueueFile(filename); err != nil {
		m.log.Warn("failed to append to queue file", "file", filename, "error", err)
	}
	m.mu.Unlock()

	if _, err := fmt.Fprintf(m.notify, "%s %s\n", NotifyPrefix, filename); err != nil {
		m.log.Warn("failed to emit completion notify line", "file", filename, "error", err)
	}
	m.log.Debug("dump file completed and queued", "file", filename)
}

// Completed returns a copy of the filenames finalized so far.
func (m *Manager) Completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.completed))
	copy(out, m.completed)
	return out
}

// DumpDir returns the dump directory path.
func (m *Manager) DumpDir() string { return m.dir }

// QueueFilePath returns the persisted queue file path.
func (m *Manager) QueueFilePath() string { return m.queuePath }

// Shutdown clears the in-memory completion queue. The queue file is left on
// disk so the host can still discover files after a restart.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = nil
	m.initialized = false
	m.log.Info("dump manager shut down")
}

// ensureInitialized creates the dump directory on first use.
func (m *Manager) ensureInitialized() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory %s: %w", m.dir, err)
	}
	m.initialized = true
	m.log.Info("dump manager initialized", "dir", m.dir)
	return nil
}

// appendQueueFile opens, appends one line, and closes per call so the queue
// file is always consistent on disk. Called with the manager mutex held.
func (m *Manager) appendQueueFile(filename string) error {
	f, err := os.OpenFile(m.queuePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(filename + "\n")
	return err
}

func directionIndex(d Direction) int {
	if d == DirectionIn {
		return 1
	}
	return 0
}
