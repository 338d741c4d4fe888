// Package model contains domain models passed between layers.
package model

import "time"

// HistoryTimeLayout is the wire format of CallRecord.Time.
const HistoryTimeLayout = "2006-01-02 15:04:05"

// Student is one roster entry. Its position in the roster is its identity.
type Student struct {
	Name  string `json:"name"`
	Count int    `json:"count"` // times this student has been called
}

// CallResult is the authoritative outcome of one roll call.
type CallResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"` // cumulative, including this call
}

// CallRecord is one line of the call history.
type CallRecord struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

// NewCallRecord formats at with HistoryTimeLayout in local time.
func NewCallRecord(name string, at time.Time) CallRecord {
	return CallRecord{Name: name, Time: at.Local().Format(HistoryTimeLayout)}
}

// CalledAt parses Time back into a local timestamp.
func (r CallRecord) CalledAt() (time.Time, error) {
	return time.ParseInLocation(HistoryTimeLayout, r.Time, time.Local)
}

// StudentStat is the per-student aggregate served by /api/stats.
type StudentStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Stats aggregates the roster and its call history.
type Stats struct {
	TotalStudents int           `json:"total_students"`
	TotalCalls    int           `json:"total_calls"`
	StudentStats  []StudentStat `json:"student_stats"`
}

// Top returns at most n leading entries of StudentStats.
func (s Stats) Top(n int) []StudentStat {
	if n <= 0 || n >= len(s.StudentStats) {
		return s.StudentStats
	}
	return s.StudentStats[:n]
}

// EventKind classifies live feed events.
type EventKind string

// Live feed event kinds.
const (
	EventCall   EventKind = "call"
	EventImport EventKind = "import"
	EventClear  EventKind = "clear"
)

// Event is a state change pushed to live feed subscribers.
type Event struct {
	ID       string    `json:"id"`
	Kind     EventKind `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Count    int       `json:"count,omitempty"`
	Students int       `json:"students,omitempty"`
	At       time.Time `json:"at"`
}
