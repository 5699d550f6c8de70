package model

import (
	"errors"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusScheduled  JobStatus = "scheduled"
	StatusConfirmed  JobStatus = "confirmed"
	StatusAssigned   JobStatus = "assigned"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

var blockingStatuses = []JobStatus{StatusScheduled, StatusConfirmed, StatusAssigned, StatusInProgress}

// Blocking reports whether a job in this status occupies the contractor's calendar.
func (s JobStatus) Blocking() bool {
	for _, b := range blockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return s.Blocking()
}

// BlockingStatuses returns the statuses used to filter calendar reads.
func BlockingStatuses() []string {
	out := make([]string, len(blockingStatuses))
	for i, s := range blockingStatuses {
		out[i] = string(s)
	}
	return out
}

// ErrJobOverlap is returned by storage when an insert collides with another blocking job.
var ErrJobOverlap = errors.New("job overlaps an existing booking")

type Job struct {
	ID               string
	ContractorID     string
	ServiceType      string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerAddress  string
	Notes            string
	ScheduledAt      time.Time
	EstimatedMinutes int
	Status           JobStatus
	Source           string
	StatusUpdatedAt  time.Time
	CreatedAt        time.Time
}

// ConfirmedBooking is a job known to block the calendar. It can only be obtained from a
// Job in a blocking status, so slot generation never sees cancelled or completed work.
type ConfirmedBooking struct {
	start   time.Time
	minutes int
}

func (b ConfirmedBooking) Start() time.Time { return b.start }

// Minutes is the booked length; zero means "use the slot duration".
func (b ConfirmedBooking) Minutes() int { return b.minutes }

func (j Job) Confirmed() (ConfirmedBooking, bool) {
	if !j.Status.Blocking() || j.ScheduledAt.IsZero() {
		return ConfirmedBooking{}, false
	}
	mins := j.EstimatedMinutes
	if mins < 0 {
		mins = 0
	}
	return ConfirmedBooking{start: j.ScheduledAt, minutes: mins}, true
}

// ConfirmedBookings keeps only the jobs that block the calendar.
func ConfirmedBookings(jobs []Job) []ConfirmedBooking {
	out := make([]ConfirmedBooking, 0, len(jobs))
	for _, j := range jobs {
		if b, ok := j.Confirmed(); ok {
			out = append(out, b)
		}
	}
	return out
}
