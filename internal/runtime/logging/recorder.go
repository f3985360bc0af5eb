package logging

import (
	"log/slog"
	"sync"
)

// Entry is one log line captured by a Recorder.
type Entry struct {
	Level  slog.Level
	Msg    string
	Err    error
	Fields LogFields
}

// Recorder is a ServiceLogger that keeps every entry in memory. Tests use it
// to assert on what the runtime logged.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  LogFields
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

// Entries returns a copy of everything logged so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(*r.entries))
	copy(out, *r.entries)
	return out
}

// Find returns the entries logged at level whose message equals msg.
func (r *Recorder) Find(level slog.Level, msg string) []Entry {
	var found []Entry
	for _, e := range r.Entries() {
		if e.Level == level && e.Msg == msg {
			found = append(found, e)
		}
	}
	return found
}

func (r *Recorder) With(fields LogFields) ServiceLogger {
	merged := make(LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Recorder{mu: r.mu, entries: r.entries, fields: merged}
}

func (r *Recorder) Trace(msg string, fields LogFields) { r.record(LevelTrace, msg, nil, fields) }
func (r *Recorder) Debug(msg string, fields LogFields) { r.record(slog.LevelDebug, msg, nil, fields) }
func (r *Recorder) Info(msg string, fields LogFields)  { r.record(slog.LevelInfo, msg, nil, fields) }
func (r *Recorder) Warn(msg string, fields LogFields)  { r.record(slog.LevelWarn, msg, nil, fields) }

func (r *Recorder) Error(msg string, err error, fields LogFields) {
	r.record(slog.LevelError, msg, err, fields)
}

func (r *Recorder) Critical(msg string, err error, fields LogFields) {
	r.record(LevelCritical, msg, err, fields)
}

func (r *Recorder) Enabled(slog.Level) bool { return true }

func (r *Recorder) record(level slog.Level, msg string, err error, fields LogFields) {
	merged := make(LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	r.mu.Lock()
	*r.entries = append(*r.entries, Entry{Level: level, Msg: msg, Err: err, Fields: merged})
	r.mu.Unlock()
}
