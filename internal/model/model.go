package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
	RoleAdmin     Role = "ADMIN"
)

func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleProfessor:
		return RoleProfessor, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// StudentRecord is one document in the remote roster collection, keyed by
// normalized email.
type StudentRecord struct {
	Email               string    `json:"email"`
	Name                string    `json:"name"`
	RegisteredCourseIDs []string  `json:"registeredCourseIds"`
	LastUpdated         time.Time `json:"lastUpdated,omitempty"`
}

func (r StudentRecord) Clone() StudentRecord {
	out := r
	out.RegisteredCourseIDs = append([]string(nil), r.RegisteredCourseIDs...)
	return out
}

func (r StudentRecord) HasCourse(courseID string) bool {
	for _, id := range r.RegisteredCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// SessionIdentity is the logged-in principal. Professor and admin sessions
// carry every catalog course id so that "my courses" never branches on role.
type SessionIdentity struct {
	Email               string   `json:"email"`
	Name                string   `json:"name"`
	Role                Role     `json:"role"`
	RegisteredCourseIDs []string `json:"registeredCourseIds"`
}

func (s SessionIdentity) Clone() SessionIdentity {
	out := s
	out.RegisteredCourseIDs = append([]string(nil), s.RegisteredCourseIDs...)
	return out
}

func (s SessionIdentity) HasCourse(courseID string) bool {
	for _, id := range s.RegisteredCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

type AttendanceStatus string

const (
	// AttendanceUnset is the logical status of a cell that was never
	// written. It is distinct from absent and never stored remotely.
	AttendanceUnset   AttendanceStatus = ""
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

func ParseAttendanceStatus(value string) (AttendanceStatus, bool) {
	switch AttendanceStatus(value) {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return AttendanceStatus(value), true
	default:
		return "", false
	}
}

// NextAttendanceStatus is the toggle cycle:
// unset -> present -> absent -> late -> present -> ...
func NextAttendanceStatus(current AttendanceStatus) AttendanceStatus {
	switch current {
	case AttendancePresent:
		return AttendanceAbsent
	case AttendanceAbsent:
		return AttendanceLate
	case AttendanceLate:
		return AttendancePresent
	default:
		return AttendancePresent
	}
}

// AttendanceTable maps session date label -> student email -> status.
type AttendanceTable map[string]map[string]AttendanceStatus

func (t AttendanceTable) Clone() AttendanceTable {
	out := make(AttendanceTable, len(t))
	for date, row := range t {
		cells := make(map[string]AttendanceStatus, len(row))
		for email, status := range row {
			cells[email] = status
		}
		out[date] = cells
	}
	return out
}

func (t AttendanceTable) Cell(date, email string) AttendanceStatus {
	row, ok := t[date]
	if !ok {
		return AttendanceUnset
	}
	return row[email]
}

func (t AttendanceTable) SetCell(date, email string, status AttendanceStatus) {
	row, ok := t[date]
	if !ok {
		row = make(map[string]AttendanceStatus)
		t[date] = row
	}
	row[email] = status
}

type Resource struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Link     string `json:"link"`
	Type     string `json:"type"`
}

// SyncState tracks one mutable entity against the remote store.
type SyncState string

const (
	SyncAbsent     SyncState = "absent"
	SyncOptimistic SyncState = "optimistic"
	SyncConfirmed  SyncState = "confirmed"
	SyncStale      SyncState = "stale"
)

// NormalizeEmail is the single identity normalization used by every lookup
// across both remote stores and the session resolver.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
