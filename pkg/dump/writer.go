package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "audiodump/pkg/errors"
	"audiodump/pkg/logger"
)

// Default buffering and rotation thresholds. Sized for a continuous PCM
// stream: the buffer absorbs per-period writes from the audio thread, the
// flush threshold bounds the data at risk on an abrupt crash, and the max
// file size bounds individual transfer time off the device.
const (
	DefaultBufferSize     = 256 * 1024
	DefaultFlushThreshold = 10 * 1024 * 1024
	DefaultMaxFileSize    = 100 * 1024 * 1024
)

// FileExt is the extension of finalized dump files. While a file is still
// being written its name carries an extra TmpSuffix, removed at finalize.
const (
	FileExt   = ".pcm"
	TmpSuffix = ".tmp"
)

// Limits controls the write buffer capacity, the periodic durability flush
// threshold, and the rotation size. Zero values fall back to the defaults.
type Limits struct {
	BufferSize     int
	FlushThreshold int64
	MaxFileSize    int64
}

func (l Limits) withDefaults() Limits {
	if l.BufferSize <= 0 {
		l.BufferSize = DefaultBufferSize
	}
	if l.FlushThreshold <= 0 {
		l.FlushThreshold = DefaultFlushThreshold
	}
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = DefaultMaxFileSize
	}
	return l
}

// Writer buffers and persists one audio stream's bytes into size-bounded
// dump files. It is owned by a single stream and called synchronously from
// that stream's I/O path, so every error is reported back as a return value
// and never disrupts the stream itself.
//
// One mutex guards the buffer and the file handle. It is held across a full
// rotation (close, rename, open next), which trades a rare latency spike on
// the calling thread for a simple single-file invariant.
type Writer struct {
	direction  Direction
	dir        string
	timestamp  string
	counter    uint64
	limits     Limits
	onComplete func(filename string)
	log        *logger.Logger

	mu        sync.Mutex
	file      *os.File
	fileName  string // final name, without directory
	tmpPath   string // full path carrying TmpSuffix
	fileIndex uint32

	buf            []byte
	bufLen         int
	fileBytes      int64 // bytes accepted into the current file (buffered + flushed)
	bytesSinceSync int64
	totalBytes     int64
	fileCount      uint32
	valid          bool
	closed         bool
}

// NewWriter opens the first dump file and returns a live session. The
// timestamp and counter seeds come from the owning Manager and make session
// filenames globally unique. onComplete is invoked once per finalized file
// with the file's final name.
func NewWriter(direction Direction, dir, timestamp string, counter uint64, limits Limits, onComplete func(string), log *logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.Default()
	}
	w := &Writer{
		direction:  direction,
		dir:        dir,
		timestamp:  timestamp,
		counter:    counter,
		limits:     limits.withDefaults(),
		onComplete: onComplete,
		log:        log.WithFields("direction", direction.String(), "session", counter),
	}
	w.buf = make([]byte, w.limits.BufferSize)

	if err := w.openNextFile(); err != nil {
		return nil, fmt.Errorf("failed to open initial dump file: %w", err)
	}
	w.valid = true
	w.log.Info("dump session started", "firstFile", w.fileName)
	return w, nil
}

// Write accepts the next chunk of the stream. A chunk that crosses the
// rotation boundary is split across files with no loss or reordering; the
// split is invisible to the caller. A zero-length chunk is a no-op.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.valid {
		return 0, apperrors.ErrSessionClosed
	}

	accepted := 0
	for len(p) > 0 {
		if w.fileBytes >= w.limits.MaxFileSize {
			if err := w.rotate(); err != nil {
				w.invalidate(err)
				return accepted, err
			}
		}

		n := len(p)
		if space := len(w.buf) - w.bufLen; n > space {
			n = space
		}
		if room := w.limits.MaxFileSize - w.fileBytes; int64(n) > room {
			n = int(room)
		}

		copy(w.buf[w.bufLen:], p[:n])
		w.bufLen += n
		w.fileBytes += int64(n)
		w.totalBytes += int64(n)
		w.bytesSinceSync += int64(n)
		accepted += n
		p = p[n:]

		if w.bufLen == len(w.buf) {
			if err := w.flushBuffer(); err != nil {
				w.invalidate(err)
				return accepted, err
			}
		}

		// Periodic durability flush, independent of buffer fullness.
		if w.bytesSinceSync >= w.limits.FlushThreshold {
			if err := w.flushBuffer(); err != nil {
				w.invalidate(err)
				return accepted, err
			}
			if err := w.file.Sync(); err != nil {
				w.invalidate(err)
				return accepted, err
			}
			w.bytesSinceSync = 0
		}
	}

	return accepted, nil
}

// Close flushes any buffered remainder and finalizes the current file.
// A file holding zero bytes is deleted instead and produces no completion.
// Closing twice is a no-op the second time.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.valid = false

	if w.file == nil {
		return nil
	}

	if err := w.flushBuffer(); err != nil {
		w.invalidate(err)
		return err
	}
	w.finalizeCurrentFile()
	w.log.Info("dump session closed", "files", w.fileCount, "totalBytes", w.totalBytes)
	return nil
}

// IsValid reports whether the session still accepts writes.
func (w *Writer) IsValid() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valid
}

// CurrentFileSize returns the bytes accepted into the current file.
func (w *Writer) CurrentFileSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileBytes
}

// TotalBytesWritten returns the bytes accepted across all files.
func (w *Writer) TotalBytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalBytes
}

// FileCount returns how many files this session has opened.
func (w *Writer) FileCount() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileCount
}

// rotate finalizes the current file and opens the next one. Called with the
// session mutex held.
func (w *Writer) rotate() error {
	if err := w.flushBuffer(); err != nil {
		return err
	}
	w.log.Info("rotating dump file", "size", w.fileBytes, "file", w.fileName)
	w.finalizeCurrentFile()
	if err := w.openNextFile(); err != nil {
		return fmt.Errorf("failed to open next dump file: %w", err)
	}
	return nil
}

// flushBuffer writes buffered bytes through to the file. Called with the
// session mutex held.
func (w *Writer) flushBuffer() error {
	if w.bufLen == 0 {
		return nil
	}
	if w.file == nil {
		return apperrors.ErrSessionClosed
	}
	if _, err := w.file.Write(w.buf[:w.bufLen]); err != nil {
		return fmt.Errorf("failed to write dump buffer: %w", err)
	}
	w.bufLen = 0
	return nil
}

// finalizeCurrentFile closes the handle and promotes the temporary file to
// its final name, reporting one completion. A zero-byte file is deleted
// instead. A rename failure leaves the temporary file behind and is logged,
// not retried; no completion is reported for it.
func (w *Writer) finalizeCurrentFile() {
	if w.file == nil {
		return
	}
	if err := w.file.Close(); err != nil {
		w.log.Warn("failed to close dump file", "file", w.fileName, "error", err)
	}
	w.file = nil

	if w.fileBytes == 0 {
		if err := os.Remove(w.tmpPath); err != nil {
			w.log.Warn("failed to remove empty dump file", "path", w.tmpPath, "error", err)
		} else {
			w.log.Debug("removed empty dump file", "path", w.tmpPath)
		}
		return
	}

	finalPath := filepath.Join(w.dir, w.fileName)
	if err := os.Rename(w.tmpPath, finalPath); err != nil {
		w.log.Error("failed to finalize dump file, temporary file left behind",
			"path", w.tmpPath, "error", err)
		return
	}
	w.log.Info("finalized dump file", "file", w.fileName, "size", w.fileBytes)

	if w.onComplete != nil {
		w.onComplete(w.fileName)
	}
}

// openNextFile opens the next temporary file and resets per-file counters.
// Called with the session mutex held.
func (w *Writer) openNextFile() error {
	w.fileIndex++
	w.fileName = w.filename(w.fileIndex)
	w.tmpPath = filepath.Join(w.dir, w.fileName+TmpSuffix)

	f, err := os.OpenFile(w.tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.tmpPath, err)
	}
	w.file = f
	w.fileBytes = 0
	w.bytesSinceSync = 0
	w.bufLen = 0
	w.fileCount++
	w.log.Debug("opened dump file", "path", w.tmpPath)
	return nil
}

// invalidate permanently rejects further writes after a filesystem error.
// The handle is closed and the temporary file is left behind for operator
// cleanup. Called with the session mutex held.
func (w *Writer) invalidate(cause error) {
	w.valid = false
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.log.Error("dump session invalidated", "error", cause, "path", w.tmpPath)
}

func (w *Writer) filename(index uint32) string {
	return fmt.Sprintf("audio_%s_%s_%d_%d%s",
		w.direction.String(), w.timestamp, w.counter, index, FileExt)
}
