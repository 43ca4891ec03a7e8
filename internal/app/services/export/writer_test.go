package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriteAllBasic(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")

	err := w.WriteAll(context.Background(), path, []string{"id", "name"}, [][]string{
		{"1", "Ada"},
		{"2", "Bob"},
	}, false)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "id,name\n1,Ada\n2,Bob\n"
	if string(data) != want {
		t.Fatalf("unexpected output %q, want %q", data, want)
	}
}

func TestWriteAllReplacesExisting(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")

	if err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"1"}, {"2"}}, false); err != nil {
		t.Fatalf("first WriteAll: %v", err)
	}
	if err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"9"}}, false); err != nil {
		t.Fatalf("second WriteAll: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "id\n9\n" {
		t.Fatalf("expected replacement, got %q", data)
	}
}

func TestWriteAllAppendMode(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")

	if err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"1"}}, true); err != nil {
		t.Fatalf("WriteAll create: %v", err)
	}
	if err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"2"}}, true); err != nil {
		t.Fatalf("WriteAll append: %v", err)
	}

	data, _ := os.ReadFile(path)
	// Header written once, then appended rows.
	if string(data) != "id\n1\n2\n" {
		t.Fatalf("unexpected append output %q", data)
	}
}

func TestWriteAllEscaping(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")

	err := w.WriteAll(context.Background(), path, []string{"id", "note"}, [][]string{
		{"1", `says "hi", twice`},
		{"2", "line\nbreak"},
	}, false)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, _ := os.ReadFile(path)
	out := string(data)
	if !strings.Contains(out, `"says ""hi"", twice"`) {
		t.Fatalf("quote escaping missing in %q", out)
	}
	if !strings.Contains(out, "\"line\nbreak\"") {
		t.Fatalf("newline quoting missing in %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("output must end with a newline")
	}
}

func TestAppendOneGrowsByOneLine(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")
	header := []string{"id", "score"}
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if err := w.AppendOne(ctx, path, header, []string{"e1", "42.00"}); err != nil {
			t.Fatalf("AppendOne %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != n+1 {
		t.Fatalf("expected %d lines (header + %d records), got %d", n+1, n, len(lines))
	}
	if lines[0] != "id,score" {
		t.Fatalf("expected single header line, got %q", lines[0])
	}
}

func TestAppendOneRepairsMissingTrailingNewline(t *testing.T) {
	w := NewTabularWriter(nil)
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("id\n1,partial"), 0o640); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := w.AppendOne(context.Background(), path, []string{"id"}, []string{"2"}); err != nil {
		t.Fatalf("AppendOne: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "1,partial\n2\n") {
		t.Fatalf("rows merged: %q", data)
	}
}

func TestLockTimeout(t *testing.T) {
	w := NewTabularWriter(nil,
		WithLockRetry(3, time.Millisecond, 4*time.Millisecond),
		WithStaleAfter(time.Hour))
	path := filepath.Join(t.TempDir(), "out.csv")

	// Hold the lock with a fresh mtime so it is never considered stale.
	if err := os.WriteFile(path+".lock", []byte("held"), 0o640); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"1"}}, false)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("no output should exist after lock timeout")
	}
}

func TestStaleLockReclaimed(t *testing.T) {
	w := NewTabularWriter(nil,
		WithLockRetry(5, time.Millisecond, 4*time.Millisecond),
		WithStaleAfter(10*time.Second))
	path := filepath.Join(t.TempDir(), "out.csv")

	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, []byte("crashed writer"), 0o640); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, past, past); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	if err := w.WriteAll(context.Background(), path, []string{"id"}, [][]string{{"1"}}, false); err != nil {
		t.Fatalf("WriteAll should reclaim stale lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock should be released after write")
	}
}

func TestConcurrentWriteAllSerializes(t *testing.T) {
	w := NewTabularWriter(nil, WithLockRetry(50, time.Millisecond, 10*time.Millisecond))
	path := filepath.Join(t.TempDir(), "out.csv")
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			records := [][]string{{"a"}, {"b"}, {"c"}}
			if err := w.WriteAll(ctx, path, []string{"col"}, records, false); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent WriteAll: %v", err)
	}

	// Whichever writer finished last, the file must be one complete write.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "col\na\nb\nc\n" {
		t.Fatalf("interleaved output %q", data)
	}
}

func TestAcquireLockContextCancelled(t *testing.T) {
	w := NewTabularWriter(nil, WithLockRetry(10, 50*time.Millisecond, time.Second), WithStaleAfter(time.Hour))
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path+".lock", []byte("held"), 0o640); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.WriteAll(ctx, path, []string{"id"}, nil, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
