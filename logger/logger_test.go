package logger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestHandlerLevels(t *testing.T) {
	l := New()
	l.SetFlags(0)
	l.SetPrefix("testing")

	var debug, info, warn int
	l.AddHandler(LevelDebug, countingHandler(t, LevelDebug, &debug))
	l.AddHandler(LevelInfo, countingHandler(t, LevelInfo, &info))
	l.AddHandler(LevelWarn, countingHandler(t, LevelWarn, &warn))

	l.Debugf("test %d", 0)
	l.Debugln("test", 0)
	l.Infof("test %d", 1)
	l.Infoln("test", 1)
	l.Warnf("test %d", 3)
	l.Warnln("test", 3)

	if debug != 6 {
		t.Errorf("debug handler called %d times, want 6", debug)
	}
	if info != 4 {
		t.Errorf("info handler called %d times, want 4", info)
	}
	if warn != 2 {
		t.Errorf("warn handler called %d times, want 2", warn)
	}
}

func countingHandler(t *testing.T, min LogLevel, counter *int) Handler {
	return func(l LogLevel, msg string) {
		*counter++
		if l < min {
			t.Errorf("handler registered at %v saw lower level %v", min, l)
		}
	}
}

func TestFacilityDebugging(t *testing.T) {
	l := New()
	l.SetFlags(0)

	var msgs int
	l.AddHandler(LevelDebug, func(_ LogLevel, msg string) {
		msgs++
		if strings.Contains(msg, "f1") {
			t.Fatal("should not see a message for the disabled facility")
		}
	})

	f0 := l.NewFacility("f0", "foo#0")
	f1 := l.NewFacility("f1", "foo#1")

	l.SetDebug("f0", true)
	l.SetDebug("f1", false)

	f0.Debugln("debug line from f0")
	f1.Debugln("debug line from f1")

	if msgs != 1 {
		t.Fatalf("got %d messages, want 1", msgs)
	}
}

func TestRecorder(t *testing.T) {
	l := New()
	l.SetFlags(0)

	r0 := NewRecorder(l, LevelWarn, 5, 0)
	r1 := NewRecorder(l, LevelInfo, 10, 3)

	for i := 0; i < 15; i++ {
		l.Debugf("Debug#%d", i)
		l.Infof("Info#%d", i)
		l.Warnf("Warn#%d", i)
	}

	lines := r0.Since(time.Time{})
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("Warn#%d", i+10)
		if lines[i].Message != want {
			t.Errorf("r0[%d] = %q, want %q", i, lines[i].Message, want)
		}
	}

	lines = r1.Since(time.Time{})
	want := []string{
		"Info#0", "Warn#0", "Info#1", "...",
		"Info#12", "Warn#12", "Info#13", "Warn#13", "Info#14", "Warn#14",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i].Message != want[i] {
			t.Errorf("r1[%d] = %q, want %q", i, lines[i].Message, want[i])
		}
	}

	now := time.Now()
	time.Sleep(time.Millisecond)
	if lines := r1.Since(now); len(lines) != 0 {
		t.Errorf("got %d lines after now, want 0", len(lines))
	}

	l.Infoln("hah")
	lines = r1.Since(now)
	if len(lines) != 1 || lines[0].Message != "hah\n" {
		t.Errorf("got %v, want one line 'hah\\n'", lines)
	}
}

func TestAsyncBudgetDropsOldest(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithBudget(buf, 20)
	l.SetFlags(0)
	defer l.Close()

	for i := 0; i < 50; i++ {
		l.Infof("line %d that is fairly long to exceed budget quickly", i)
	}

	deadline := time.Now().Add(time.Second)
	for buf.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if buf.Len() == 0 {
		t.Fatal("expected some output to have drained")
	}
}
