package monitor

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"audiodump/pkg/logger"
)

// runWorker consumes the shared task queue. Each worker makes one blocking,
// timeout-bounded pull at a time; the lock-protected tracker is only touched
// before and after the device calls.
func (m *Monitor) runWorker(ctx context.Context, id int) error {
	log := m.log.WithField("worker", id)
	log.Info("pull worker started")
	defer log.Info("pull worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-m.tasks:
			m.process(ctx, log, task)
		}
	}
}

// process runs one pull attempt for the task. On success the file is removed
// from the device and recorded in the processed set; on failure the task is
// retried after a delay until the attempt budget runs out.
func (m *Monitor) process(ctx context.Context, log *logger.Logger, task Task) {
	task.Attempts++

	remotePath := path.Join(m.cfg.Device.DumpDir, task.Filename)
	localPath := filepath.Join(m.cfg.Monitor.LocalDir, task.Filename)

	if err := m.dev.Pull(ctx, remotePath, localPath); err != nil {
		log.Warn("pull attempt failed",
			"file", task.Filename, "attempt", task.Attempts, "error", err)

		if task.Attempts < m.cfg.Monitor.MaxRetries {
			m.requeue(ctx, task)
			return
		}
		m.tracker.markFailed(task.Filename)
		log.Error("giving up on dump file",
			"file", task.Filename, "attempts", task.Attempts)
		return
	}

	var size int64
	if fi, err := os.Stat(localPath); err == nil {
		size = fi.Size()
	}

	// The local copy is safe; a cleanup failure only leaves the file on the
	// device, where the processed set keeps it from being pulled again.
	if err := m.dev.Cleanup(ctx, remotePath, m.cfg.Device.QueueFile, task.Filename); err != nil {
		log.Warn("device cleanup failed", "file", task.Filename, "error", err)
	}

	m.tracker.markProcessed(task.Filename, size)
	log.Info("pulled dump file",
		"file", task.Filename,
		"size", size,
		"attempts", task.Attempts,
		"queuedFor", time.Since(task.EnqueuedAt).Round(time.Millisecond))
}

// requeue puts the task back on the queue after the configured delay without
// tying up a worker while it waits.
func (m *Monitor) requeue(ctx context.Context, task Task) {
	m.retryWG.Add(1)
	go func() {
		defer m.retryWG.Done()
		if !sleepCtx(ctx, m.cfg.Monitor.RetryDelay) {
			return
		}
		select {
		case m.tasks <- task:
		case <-ctx.Done():
		}
	}()
}
