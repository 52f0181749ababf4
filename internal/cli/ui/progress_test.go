package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a buffer shared with the spinner goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, SpinnerOptions{Message: "loading", NoColor: true, Interval: time.Millisecond})

	s.Start()
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.UpdateMessage("still loading")
	time.Sleep(20 * time.Millisecond)
	s.Success("loaded")
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "loading") {
		t.Errorf("spinner never drew its message:\n%q", out)
	}
	if !strings.HasSuffix(out, "✓ loaded\n") {
		t.Errorf("spinner output should end with the success line:\n%q", out)
	}
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, SpinnerOptions{NoColor: true})
	s.Stop()
	s.Error("failed")
	if buf.String() != "❌ failed\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, ProgressBarOptions{Total: 4, Width: 8, Message: "probing", NoColor: true})

	bar.Add(1)
	if !strings.Contains(buf.String(), "[██░░░░░░]  25% probing") {
		t.Errorf("after one step: %q", buf.String())
	}

	bar.Set(10)
	if !strings.HasSuffix(buf.String(), "[████████] 100% probing") {
		t.Errorf("Set past total should cap: %q", buf.String())
	}

	bar.Finish()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("Finish should end the line: %q", buf.String())
	}
}

func TestProgressBarZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	NewProgressBar(&buf, ProgressBarOptions{NoColor: true}).Add(1)
	if buf.Len() != 0 {
		t.Errorf("zero total bar wrote %q", buf.String())
	}
}

func TestWithSpinner(t *testing.T) {
	var buf syncBuffer
	if err := WithSpinner(&buf, "loading views", true, func() error { return nil }); err != nil {
		t.Fatalf("WithSpinner() error = %v", err)
	}
	if !strings.Contains(buf.String(), "✓ loading views") {
		t.Errorf("missing success line: %q", buf.String())
	}

	var failed syncBuffer
	boom := errors.New("boom")
	if err := WithSpinner(&failed, "loading views", true, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithSpinner() error = %v, want %v", err, boom)
	}
	if !strings.Contains(failed.String(), "❌ loading views failed") {
		t.Errorf("missing failure line: %q", failed.String())
	}
}

func TestWithProgress(t *testing.T) {
	var buf bytes.Buffer
	err := WithProgress(&buf, "probed", 3, true, func(bar *ProgressBar) error {
		for i := 0; i < 3; i++ {
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithProgress() error = %v", err)
	}
	if !strings.HasSuffix(buf.String(), "✓ probed\n") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	boom := errors.New("boom")
	err = WithProgress(&buf, "probed", 3, true, func(*ProgressBar) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("WithProgress() error = %v, want %v", err, boom)
	}
	if strings.Contains(buf.String(), "✓") {
		t.Errorf("failed run should not report success: %q", buf.String())
	}
}
