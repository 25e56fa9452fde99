/*
Package alert carries format anomalies out of the pipeline.

A Reporter is a one-way message sink. Reporting never fails from the
caller's point of view: adapters log and swallow their own errors.
*/
package alert

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Reporter receives a single human readable anomaly message
type Reporter interface {
	Report(message string)
}

// ReporterFunc adapts a plain function to a Reporter
type ReporterFunc func(message string)

func (f ReporterFunc) Report(message string) {
	f(message)
}

// Discard drops every message
var Discard Reporter = ReporterFunc(func(string) {})

// LogReporter writes anomalies to a logrus entry at warn level
type LogReporter struct {
	Logger *log.Entry
}

func (r LogReporter) Report(message string) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger.WithField("alert", true).Warn(message)
}

type multi []Reporter

func (m multi) Report(message string) {
	for _, r := range m {
		r.Report(message)
	}
}

// Multi fans a message out to every non-nil reporter, each guarded by Safe
func Multi(reporters ...Reporter) Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, Safe(r))
		}
	}
	return m
}

type safe struct {
	next Reporter
}

func (s safe) Report(message string) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("alert reporter panicked")
		}
	}()
	s.next.Report(message)
}

// Safe recovers panics raised by r so they never reach the pipeline
func Safe(r Reporter) Reporter {
	if r == nil {
		return Discard
	}
	if _, ok := r.(safe); ok {
		return r
	}
	return safe{next: r}
}

// Recorder keeps every message it receives, in order
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Report(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded messages
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Count reports how many times message was recorded
func (r *Recorder) Count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m == message {
			n++
		}
	}
	return n
}
