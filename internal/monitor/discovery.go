package monitor

import (
	"bufio"
	"context"
	"regexp"
	"strings"
	"time"

	"audiodump/pkg/dump"
)

// notifyPattern matches the completion line the device emits on its
// diagnostic stream, capturing the filename.
var notifyPattern = regexp.MustCompile(regexp.QuoteMeta(dump.NotifyPrefix) + `\s*(\S+)`)

// logStreamRetryDelay paces reconnect attempts after the log stream drops.
const logStreamRetryDelay = 5 * time.Second

// runTail is the live discovery channel: it tails the device log stream and
// enqueues a task the moment a completion line appears. The stream is
// reopened with a delay whenever it fails; losing it is survivable because
// the poller will catch anything missed.
func (m *Monitor) runTail(ctx context.Context) error {
	log := m.log.WithField("loop", "logcat")
	log.Info("logcat listener started")
	defer log.Info("logcat listener stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		stream, err := m.dev.OpenLogStream(ctx)
		if err != nil {
			log.Error("failed to open log stream", "error", err)
			if !sleepCtx(ctx, logStreamRetryDelay) {
				return nil
			}
			continue
		}

		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			if ctx.Err() != nil {
				break
			}
			if match := notifyPattern.FindStringSubmatch(scanner.Text()); match != nil {
				if !validQueueEntry(match[1]) {
					log.Warn("skipping malformed notify line", "entry", match[1])
					continue
				}
				m.enqueue(ctx, "logcat", match[1])
			}
		}
		_ = stream.Close()

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Warn("log stream error", "error", err)
		}
		if !sleepCtx(ctx, logStreamRetryDelay) {
			return nil
		}
	}
}

// runPoll is the crash-and-poll-safe discovery channel: it re-reads the full
// persisted queue file on a fixed interval. Almost every entry it sees is a
// duplicate of something the tail already caught; the tracker drops those.
func (m *Monitor) runPoll(ctx context.Context) error {
	log := m.log.WithField("loop", "poll")
	log.Info("queue poller started", "interval", m.cfg.Monitor.PollInterval)
	defer log.Info("queue poller stopped")

	ticker := time.NewTicker(m.cfg.Monitor.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			files, err := m.dev.ReadQueueFile(ctx, m.cfg.Device.QueueFile)
			if err != nil {
				log.Warn("queue poll failed", "error", err)
				continue
			}
			for _, filename := range files {
				if !validQueueEntry(filename) {
					log.Warn("skipping malformed queue entry", "entry", filename)
					continue
				}
				m.enqueue(ctx, "poll", filename)
			}
		}
	}
}

// validQueueEntry rejects discovered names, from either channel, that cannot
// be a bare dump filename.
func validQueueEntry(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\ \t") {
		return false
	}
	return true
}
