package dump_test

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"audiodump/pkg/dump"
	apperrors "audiodump/pkg/errors"
)

const testTimestamp = "20240101_120000"

func newTestWriter(t *testing.T, dir string, limits dump.Limits) (*dump.Writer, *[]string) {
	t.Helper()

	var completed []string
	w, err := dump.NewWriter(dump.DirectionOut, dir, testTimestamp, 1, limits,
		func(name string) { completed = append(completed, name) }, nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	return w, &completed
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

func TestWriter_SingleWriteSpansRotationBoundary(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{MaxFileSize: 1000})

	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := w.Write(payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 1500 {
		t.Fatalf("Expected 1500 bytes accepted, got %d", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(*completed) != 2 {
		t.Fatalf("Expected 2 completion records, got %d", len(*completed))
	}

	first := readFile(t, filepath.Join(dir, (*completed)[0]))
	second := readFile(t, filepath.Join(dir, (*completed)[1]))

	if len(first) != 1000 {
		t.Errorf("Expected first file size 1000, got %d", len(first))
	}
	if len(second) != 500 {
		t.Errorf("Expected second file size 500, got %d", len(second))
	}
	if !bytes.Equal(append(first, second...), payload) {
		t.Error("Concatenated files do not reproduce the original byte stream")
	}
}

func TestWriter_RotationPreservesByteStream(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{
		BufferSize:     64,
		FlushThreshold: 200,
		MaxFileSize:    1000,
	})

	// Random chunk sizes force every combination of buffer fill, periodic
	// flush, and rotation inside a single stream of writes.
	rng := rand.New(rand.NewSource(42))
	var stream bytes.Buffer
	for stream.Len() < 3500 {
		chunk := make([]byte, 1+rng.Intn(300))
		rng.Read(chunk)
		stream.Write(chunk)
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var recombined bytes.Buffer
	for i, name := range *completed {
		data := readFile(t, filepath.Join(dir, name))
		if i < len(*completed)-1 && len(data) != 1000 {
			t.Errorf("Expected full file %s to hold 1000 bytes, got %d", name, len(data))
		}
		recombined.Write(data)
	}

	if !bytes.Equal(recombined.Bytes(), stream.Bytes()) {
		t.Error("Concatenated files in index order do not reproduce the stream")
	}
	if w.TotalBytesWritten() != int64(stream.Len()) {
		t.Errorf("Expected total bytes %d, got %d", stream.Len(), w.TotalBytesWritten())
	}
}

func TestWriter_CompletionNamesFollowIndexOrder(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{MaxFileSize: 100})

	if _, err := w.Write(make([]byte, 250)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []string{
		fmt.Sprintf("audio_out_%s_1_1.pcm", testTimestamp),
		fmt.Sprintf("audio_out_%s_1_2.pcm", testTimestamp),
		fmt.Sprintf("audio_out_%s_1_3.pcm", testTimestamp),
	}
	if len(*completed) != len(want) {
		t.Fatalf("Expected %d completions, got %d", len(want), len(*completed))
	}
	for i, name := range want {
		if (*completed)[i] != name {
			t.Errorf("Expected completion %d to be %s, got %s", i, name, (*completed)[i])
		}
	}
}

func TestWriter_ZeroByteSessionDiscarded(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{})

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(*completed) != 0 {
		t.Errorf("Expected no completion records, got %d", len(*completed))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty dump directory, found %d entries", len(entries))
	}
}

func TestWriter_CloseFinalizesOnce(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{})

	if _, err := w.Write([]byte("pcm data")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if len(*completed) != 1 {
		t.Fatalf("Expected exactly 1 completion record, got %d", len(*completed))
	}
	data := readFile(t, filepath.Join(dir, (*completed)[0]))
	if len(data) != len("pcm data") {
		t.Errorf("Expected finalized file of %d bytes, got %d", len("pcm data"), len(data))
	}
}

func TestWriter_WriteAfterCloseRejected(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWriter(t, dir, dump.Limits{})

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, apperrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if w.IsValid() {
		t.Error("Expected session to be invalid after close")
	}
}

func TestWriter_ZeroLengthWriteIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWriter(t, dir, dump.Limits{})

	n, err := w.Write(nil)
	if err != nil {
		t.Fatalf("Expected zero-length write to succeed, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 bytes accepted, got %d", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestWriter_TemporarySuffixWhileWriting(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWriter(t, dir, dump.Limits{})

	if _, err := w.Write([]byte("in progress")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry while writing, got %d", len(entries))
	}
	name := entries[0].Name()
	if filepath.Ext(name) != dump.TmpSuffix {
		t.Errorf("Expected in-progress file to carry %s suffix, got %s", dump.TmpSuffix, name)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	entries, _ = os.ReadDir(dir)
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != dump.FileExt {
		t.Error("Expected a single finalized .pcm file after close")
	}
}

func TestWriter_RotationErrorInvalidatesSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	w, completed := newTestWriter(t, dir, dump.Limits{MaxFileSize: 100})

	if _, err := w.Write(make([]byte, 90)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Pull the dump directory out from under the session so the next
	// rotation cannot finalize or open a file.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	if _, err := w.Write(make([]byte, 20)); err == nil {
		t.Fatal("Expected rotation across a missing directory to fail")
	}
	if w.IsValid() {
		t.Error("Expected session to be invalid after a rotation error")
	}
	if _, err := w.Write([]byte("more")); !errors.Is(err, apperrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after invalidation, got %v", err)
	}
	if len(*completed) != 0 {
		t.Errorf("Expected no completion records, got %d", len(*completed))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close after invalidation failed: %v", err)
	}
	if len(*completed) != 0 {
		t.Errorf("Expected close to emit no records, got %d", len(*completed))
	}
}

func TestWriter_RenameFailureLeavesTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	w, completed := newTestWriter(t, dir, dump.Limits{})

	if _, err := w.Write([]byte("pcm data")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Occupy the final name with a directory so the finalize rename fails.
	finalPath := filepath.Join(dir, fmt.Sprintf("audio_out_%s_1_1.pcm", testTimestamp))
	if err := os.Mkdir(finalPath, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(*completed) != 0 {
		t.Errorf("Expected no completion record for a failed finalize, got %d", len(*completed))
	}
	data := readFile(t, finalPath+dump.TmpSuffix)
	if !bytes.Equal(data, []byte("pcm data")) {
		t.Error("Expected the temporary file to remain with its contents intact")
	}
}

func TestWriter_AccountingAccessors(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWriter(t, dir, dump.Limits{MaxFileSize: 100})

	if _, err := w.Write(make([]byte, 150)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if w.FileCount() != 2 {
		t.Errorf("Expected 2 files opened, got %d", w.FileCount())
	}
	if w.CurrentFileSize() != 50 {
		t.Errorf("Expected 50 bytes in current file, got %d", w.CurrentFileSize())
	}
	if w.TotalBytesWritten() != 150 {
		t.Errorf("Expected 150 total bytes, got %d", w.TotalBytesWritten())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
