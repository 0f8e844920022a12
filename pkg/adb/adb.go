// Package adb wraps the adb binary for the handful of device operations the
// dump monitor needs. Every call is bounded by the caller's context; blocking
// transfer commands additionally carry the configured command timeout so
// shutdown latency stays bounded.
package adb

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	apperrors "audiodump/pkg/errors"
	"audiodump/pkg/logger"
)

// Client invokes adb subcommands against the default device.
type Client struct {
	path    string
	timeout time.Duration
	log     *logger.Logger
}

// New builds a client. path is the adb executable (default "adb"); timeout
// bounds each individual command.
func New(path string, timeout time.Duration, log *logger.Logger) *Client {
	if path == "" {
		path = "adb"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		path:    path,
		timeout: timeout,
		log:     log.WithField("component", "adb"),
	}
}

// DeviceReady reports whether at least one device is attached and online.
func (c *Client) DeviceReady(ctx context.Context) error {
	out, err := c.run(ctx, "devices")
	if err != nil {
		return fmt.Errorf("adb devices failed: %w", err)
	}
	if !hasOnlineDevice(out) {
		return apperrors.ErrNoDevice
	}
	return nil
}

// hasOnlineDevice parses `adb devices` output. Offline and unauthorized
// devices do not count.
func hasOnlineDevice(out string) bool {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return false
	}
	for _, line := range lines[1:] { // first line is the header
		if strings.Contains(line, "\tdevice") {
			return true
		}
	}
	return false
}

// Pull copies one file from the device to a local path.
func (c *Client) Pull(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.run(ctx, "pull", remotePath, localPath); err != nil {
		return fmt.Errorf("adb pull %s failed: %w", remotePath, err)
	}
	return nil
}

// Cleanup removes a transferred file from the device and strips its line
// from the queue file in one shell invocation.
func (c *Client) Cleanup(ctx context.Context, remotePath, queueFile, filename string) error {
	cmd := fmt.Sprintf("rm %s && sed -i '/%s/d' %s", remotePath, filename, queueFile)
	if _, err := c.run(ctx, "shell", cmd); err != nil {
		return fmt.Errorf("adb cleanup of %s failed: %w", remotePath, err)
	}
	return nil
}

// ReadQueueFile returns the filenames currently listed in the device queue
// file, skipping blank lines. A missing queue file reads as empty.
func (c *Client) ReadQueueFile(ctx context.Context, queueFile string) ([]string, error) {
	out, err := c.run(ctx, "shell", "cat "+queueFile+" 2>/dev/null")
	if err != nil {
		return nil, fmt.Errorf("adb queue read failed: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// OpenLogStream starts a raw logcat stream filtered to the dump manager tag.
// The returned reader delivers one notification line per completed file and
// stays open until the context is cancelled or the stream fails.
func (c *Client) OpenLogStream(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, c.path, "logcat", "-s", "AudioDumpManager:I", "-v", "raw")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open logcat pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start logcat: %w", err)
	}
	c.log.Debug("logcat stream opened")
	return &logStream{r: stdout, cmd: cmd}, nil
}

// run executes one adb command under the client timeout and returns stdout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Debug("running adb command", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// logStream couples the logcat stdout pipe with its process so Close also
// reaps the child.
type logStream struct {
	r   io.ReadCloser
	cmd *exec.Cmd
}

func (s *logStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *logStream) Close() error {
	_ = s.r.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}
