package logger

import (
	"sync"
	"time"
)

// Line is a single recorded log line.
type Line struct {
	When    time.Time
	Level   LogLevel
	Message string
}

// Recorder keeps the most recent log lines at or above a minimum level,
// optionally with a fixed number of "permanent" lines from the start of
// the recording kept forever, with a single "..." marker line standing in
// for whatever was dropped in between. It is the basis for the
// self-hosted "recent errors"/"system log" views an embedding
// application exposes; the client library itself only produces the
// Recorder machinery, not a UI around it.
type Recorder struct {
	mut          sync.Mutex
	permanentCap int
	permanent    []Line
	ringCap      int
	ring         []Line
	ringDropped  bool
	dropTime     time.Time
}

// NewRecorder creates a Recorder subscribed to l for messages at minLevel
// or above. Up to size lines are retained; the first permanent of those
// are never evicted.
func NewRecorder(l *Logger, minLevel LogLevel, size, permanent int) *Recorder {
	r := &Recorder{permanentCap: permanent}
	if permanent > 0 {
		r.ringCap = size - permanent - 1
	} else {
		r.ringCap = size
	}
	if r.ringCap < 0 {
		r.ringCap = 0
	}
	l.AddHandler(minLevel, r.record)
	return r
}

func (r *Recorder) record(level LogLevel, msg string) {
	r.mut.Lock()
	defer r.mut.Unlock()

	line := Line{When: time.Now(), Level: level, Message: msg}
	if len(r.permanent) < r.permanentCap {
		r.permanent = append(r.permanent, line)
		return
	}

	r.ring = append(r.ring, line)
	if len(r.ring) > r.ringCap {
		r.ringDropped = true
		r.dropTime = r.ring[0].When
		r.ring = r.ring[len(r.ring)-r.ringCap:]
	}
}

// Since returns the recorded lines with When strictly after t, in
// chronological order, including the "..." marker line where applicable.
func (r *Recorder) Since(t time.Time) []Line {
	r.mut.Lock()
	defer r.mut.Unlock()

	var out []Line
	for _, l := range r.permanent {
		if l.When.After(t) {
			out = append(out, l)
		}
	}
	if r.permanentCap > 0 && r.ringDropped && r.dropTime.After(t) {
		out = append(out, Line{When: r.dropTime, Message: "..."})
	}
	for _, l := range r.ring {
		if l.When.After(t) {
			out = append(out, l)
		}
	}
	return out
}
