package reconcile

import (
	"context"

	"oikos/lms/internal/cache"
	"oikos/lms/internal/model"
)

// Session and roster operations used by the login flow.

// SetSession installs the active identity and persists it to the cache.
func (r *Reconciler) SetSession(ctx context.Context, identity model.SessionIdentity) {
	identity.Email = model.NormalizeEmail(identity.Email)
	r.mu.Lock()
	installed := identity.Clone()
	r.session = &installed
	r.mu.Unlock()
	r.cache.Save(ctx, cache.KeySession, identity)
}

// ClearSession drops the active identity and removes it from the cache. The
// remembered email is untouched.
func (r *Reconciler) ClearSession(ctx context.Context) {
	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
	r.cache.Delete(ctx, cache.KeySession)
}

// Session returns a copy of the active identity.
func (r *Reconciler) Session() (model.SessionIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return model.SessionIdentity{}, false
	}
	return r.session.Clone(), true
}

// LookupStudent returns the roster record at the normalized email, if any.
func (r *Reconciler) LookupStudent(email string) (model.StudentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.roster[model.NormalizeEmail(email)]
	if !ok {
		return model.StudentRecord{}, false
	}
	return rec.Clone(), true
}

// InsertStudent adds a brand-new roster record optimistically and propagates
// it to the remote store.
func (r *Reconciler) InsertStudent(ctx context.Context, record model.StudentRecord) {
	record.Email = model.NormalizeEmail(record.Email)
	if record.RegisteredCourseIDs == nil {
		record.RegisteredCourseIDs = []string{}
	}
	r.mu.Lock()
	r.roster[record.Email] = record.Clone()
	r.states[rosterKey(record.Email)] = model.SyncOptimistic
	snapshot := record.Clone()
	r.scheduleRosterFlushLocked()
	r.mu.Unlock()
	r.propagateRoster(snapshot)
}

// RememberEmail stores or clears the login convenience email.
func (r *Reconciler) RememberEmail(ctx context.Context, email string, remember bool) {
	email = model.NormalizeEmail(email)
	r.mu.Lock()
	if remember {
		r.rememberedEmail = email
	} else {
		r.rememberedEmail = ""
	}
	r.mu.Unlock()
	if remember {
		r.cache.Save(ctx, cache.KeyRememberedEmail, email)
		return
	}
	r.cache.Delete(ctx, cache.KeyRememberedEmail)
}

func (r *Reconciler) RememberedEmail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rememberedEmail
}

// Read accessors. All return copies; callers never see internal maps.

// Roster returns every record sorted by email.
func (r *Reconciler) Roster() []model.StudentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterSliceLocked()
}

// AttendanceFor returns a copy of the course's table; empty when the course
// has never been marked.
func (r *Reconciler) AttendanceFor(courseID string) model.AttendanceTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.attendance[courseID]
	if !ok {
		return model.AttendanceTable{}
	}
	return table.Clone()
}

// ResourcesFor returns a copy of the course's materials, newest first.
func (r *Reconciler) ResourcesFor(courseID string) []model.Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Resource(nil), r.resources[courseID]...)
}

// SyncState reports one entity's state. Entities never written or fetched
// report SyncAbsent.
func (r *Reconciler) SyncState(key string) model.SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[key]
	if !ok {
		return model.SyncAbsent
	}
	return state
}

// SyncSummary aggregates entity states for the status endpoint.
type SyncSummary struct {
	Confirmed  int      `json:"confirmed"`
	Optimistic int      `json:"optimistic"`
	Stale      int      `json:"stale"`
	StaleKeys  []string `json:"staleKeys,omitempty"`
}

func (r *Reconciler) SyncSummary() SyncSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var summary SyncSummary
	for key, state := range r.states {
		switch state {
		case model.SyncConfirmed:
			summary.Confirmed++
		case model.SyncOptimistic:
			summary.Optimistic++
		case model.SyncStale:
			summary.Stale++
			summary.StaleKeys = append(summary.StaleKeys, key)
		}
	}
	return summary
}
