package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oikos/lms/internal/cache"
	"oikos/lms/internal/catalog"
	"oikos/lms/internal/model"
)

// RosterStore is the remote roster collection.
type RosterStore interface {
	FetchAll(ctx context.Context) ([]model.StudentRecord, error)
	Upsert(ctx context.Context, record model.StudentRecord) error
}

// AttendanceStore is the remote per-course attendance collection.
type AttendanceStore interface {
	FetchForCourse(ctx context.Context, courseID string) (model.AttendanceTable, error)
	SaveForCourse(ctx context.Context, courseID string, table model.AttendanceTable) error
	SetCell(ctx context.Context, courseID, date, email string, status model.AttendanceStatus) error
}

// ResourceStore is the remote per-course materials collection.
type ResourceStore interface {
	FetchResources(ctx context.Context, courseID string) ([]model.Resource, error)
	SaveResources(ctx context.Context, courseID string, resources []model.Resource) error
}

// Cache is the durable local fast path.
type Cache interface {
	Save(ctx context.Context, key string, value any) bool
	Load(ctx context.Context, key string, dest any) bool
	Delete(ctx context.Context, key string)
}

// Reconciler is the single place that decides source-of-truth precedence
// and drives the optimistic-update / async-propagate pattern. It owns the
// in-memory roster, the active session, per-course attendance tables and
// resource lists, plus a sync state per mutable entity.
//
// Mutations apply to memory synchronously, persist to the local cache, and
// propagate to the remote store in the background. Background writes race;
// the remote store holds whichever write completes last.
type Reconciler struct {
	mu              sync.Mutex
	roster          map[string]model.StudentRecord
	session         *model.SessionIdentity
	attendance      map[string]model.AttendanceTable
	resources       map[string][]model.Resource
	states          map[string]model.SyncState
	rememberedEmail string
	flushTimer      *time.Timer
	flushDone       chan struct{}
	baseCtx         context.Context

	catalog         *catalog.Catalog
	rosterStore     RosterStore
	attendanceStore AttendanceStore
	resourceStore   ResourceStore
	cache           Cache
	debounce        time.Duration
	log             *zap.Logger

	wg sync.WaitGroup
}

func New(cat *catalog.Catalog, roster RosterStore, attendance AttendanceStore, resources ResourceStore, localCache Cache, debounce time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		roster:          make(map[string]model.StudentRecord),
		attendance:      make(map[string]model.AttendanceTable),
		resources:       make(map[string][]model.Resource),
		states:          make(map[string]model.SyncState),
		baseCtx:         context.Background(),
		catalog:         cat,
		rosterStore:     roster,
		attendanceStore: attendance,
		resourceStore:   resources,
		cache:           localCache,
		debounce:        debounce,
		log:             log,
	}
}

func rosterKey(email string) string {
	return "roster/" + email
}

func attendanceCellKey(courseID, date, email string) string {
	return fmt.Sprintf("attendance/%s/%s/%s", courseID, date, email)
}

func resourcesKey(courseID string) string {
	return "resources/" + courseID
}

// Boot loads the local cache synchronously (fast path) and kicks off the
// remote refresh in the background. Remote results supersede the cache when
// they arrive; a failed fetch retains the cached state with no retry
// scheduling.
func (r *Reconciler) Boot(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx

	var remembered string
	if r.cache.Load(ctx, cache.KeyRememberedEmail, &remembered) {
		r.rememberedEmail = model.NormalizeEmail(remembered)
	}
	var session model.SessionIdentity
	if r.cache.Load(ctx, cache.KeySession, &session) {
		restored := session.Clone()
		r.session = &restored
	}
	var records []model.StudentRecord
	if r.cache.Load(ctx, cache.KeyRoster, &records) {
		for _, rec := range records {
			rec.Email = model.NormalizeEmail(rec.Email)
			r.roster[rec.Email] = rec
		}
	}
	var resources map[string][]model.Resource
	if r.cache.Load(ctx, cache.KeyResources, &resources) && resources != nil {
		r.resources = resources
	}
	for _, courseID := range r.catalog.CourseIDs() {
		var table model.AttendanceTable
		if r.cache.Load(ctx, cache.AttendanceKey(courseID), &table) && table != nil {
			r.attendance[courseID] = table
		}
	}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.refreshRemote(ctx); err != nil {
			r.log.Warn("boot refresh degraded to cached state", zap.Error(err))
		}
	}()
}

// Refresh is the manual refresh path: synchronous, returns
// ErrRemoteUnavailable when the roster fetch fails.
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.refreshRemote(ctx)
}

func (r *Reconciler) refreshRemote(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		records, err := r.rosterStore.FetchAll(gctx)
		if err != nil {
			fetchFailures.WithLabelValues("roster").Inc()
			return err
		}
		r.applyRemoteRoster(ctx, records)
		return nil
	})

	for _, courseID := range r.catalog.CourseIDs() {
		courseID := courseID
		g.Go(func() error {
			table, err := r.attendanceStore.FetchForCourse(gctx, courseID)
			if err != nil {
				fetchFailures.WithLabelValues("attendance").Inc()
				r.log.Warn("attendance refresh failed, keeping cached table",
					zap.String("course", courseID), zap.Error(err))
				return nil
			}
			r.mu.Lock()
			r.attendance[courseID] = table
			r.mu.Unlock()
			r.cache.Save(ctx, cache.AttendanceKey(courseID), table)
			return nil
		})
		g.Go(func() error {
			list, err := r.resourceStore.FetchResources(gctx, courseID)
			if err != nil {
				fetchFailures.WithLabelValues("resources").Inc()
				r.log.Warn("resources refresh failed, keeping cached list",
					zap.String("course", courseID), zap.Error(err))
				return nil
			}
			if list == nil {
				return nil
			}
			r.mu.Lock()
			r.resources[courseID] = list
			snapshot := r.resourcesMapLocked()
			r.mu.Unlock()
			r.cache.Save(ctx, cache.KeyResources, snapshot)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrRemoteUnavailable, err)
	}
	return nil
}

// applyRemoteRoster replaces the in-memory roster with the remote result
// and, when the active session is a student found in it, merges that
// record's name and registrations into the session. Remote wins over local
// for this merge.
func (r *Reconciler) applyRemoteRoster(ctx context.Context, records []model.StudentRecord) {
	r.mu.Lock()
	roster := make(map[string]model.StudentRecord, len(records))
	for _, rec := range records {
		rec.Email = model.NormalizeEmail(rec.Email)
		roster[rec.Email] = rec
		r.states[rosterKey(rec.Email)] = model.SyncConfirmed
	}
	r.roster = roster

	var sessionSnapshot *model.SessionIdentity
	if r.session != nil && r.session.Role == model.RoleStudent {
		if rec, ok := roster[model.NormalizeEmail(r.session.Email)]; ok {
			r.session.Name = rec.Name
			r.session.RegisteredCourseIDs = append([]string(nil), rec.RegisteredCourseIDs...)
			snapshot := r.session.Clone()
			sessionSnapshot = &snapshot
		}
	}
	rosterSnapshot := r.rosterSliceLocked()
	r.mu.Unlock()

	r.cache.Save(ctx, cache.KeyRoster, rosterSnapshot)
	if sessionSnapshot != nil {
		r.cache.Save(ctx, cache.KeySession, *sessionSnapshot)
	}
}

// Register adds a course to the active session. Idempotent: registering an
// already-held course is a no-op. The course id must exist in the catalog.
func (r *Reconciler) Register(ctx context.Context, courseID string) error {
	return r.setRegistration(ctx, courseID, true)
}

// Unregister is the symmetric removal; dropping a course that was never
// held is a no-op.
func (r *Reconciler) Unregister(ctx context.Context, courseID string) error {
	return r.setRegistration(ctx, courseID, false)
}

func (r *Reconciler) setRegistration(ctx context.Context, courseID string, add bool) error {
	if !r.catalog.HasCourse(courseID) {
		return fmt.Errorf("%w: unknown course %q", model.ErrValidation, courseID)
	}

	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no active session", model.ErrValidation)
	}
	if !model.Can(r.session.Role, model.CapRegister) {
		role := r.session.Role
		r.mu.Unlock()
		return fmt.Errorf("%w: role %s cannot change registrations", model.ErrValidation, role)
	}
	has := r.session.HasCourse(courseID)
	if add == has {
		r.mu.Unlock()
		return nil
	}

	ids := make([]string, 0, len(r.session.RegisteredCourseIDs)+1)
	for _, id := range r.session.RegisteredCourseIDs {
		if id != courseID {
			ids = append(ids, id)
		}
	}
	if add {
		ids = append(ids, courseID)
	}
	r.session.RegisteredCourseIDs = ids

	email := model.NormalizeEmail(r.session.Email)
	rec, ok := r.roster[email]
	if !ok {
		rec = model.StudentRecord{Email: email, Name: r.session.Name}
	}
	rec.RegisteredCourseIDs = append([]string(nil), ids...)
	r.roster[email] = rec
	r.states[rosterKey(email)] = model.SyncOptimistic

	sessionSnapshot := r.session.Clone()
	recordSnapshot := rec.Clone()
	r.scheduleRosterFlushLocked()
	r.mu.Unlock()

	r.cache.Save(ctx, cache.KeySession, sessionSnapshot)
	r.propagateRoster(recordSnapshot)
	return nil
}

// MarkAttendance updates one (course, date, email) cell. An unset status
// argument toggles through the cycle unset -> present -> absent -> late ->
// present. The cell applies to memory immediately and propagates as a
// per-cell remote write.
func (r *Reconciler) MarkAttendance(ctx context.Context, courseID, date, email string, status model.AttendanceStatus) error {
	if !r.catalog.HasCourse(courseID) {
		return fmt.Errorf("%w: unknown course %q", model.ErrValidation, courseID)
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return fmt.Errorf("%w: missing session date", model.ErrValidation)
	}
	email = model.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: missing student email", model.ErrValidation)
	}
	if status != model.AttendanceUnset {
		if _, ok := model.ParseAttendanceStatus(string(status)); !ok {
			return fmt.Errorf("%w: invalid status %q", model.ErrValidation, status)
		}
	}

	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no active session", model.ErrValidation)
	}
	if !model.Can(r.session.Role, model.CapMarkAttendance) {
		role := r.session.Role
		r.mu.Unlock()
		return fmt.Errorf("%w: role %s cannot mark attendance", model.ErrValidation, role)
	}
	table, ok := r.attendance[courseID]
	if !ok {
		table = model.AttendanceTable{}
		r.attendance[courseID] = table
	}
	if status == model.AttendanceUnset {
		status = model.NextAttendanceStatus(table.Cell(date, email))
	}
	table.SetCell(date, email, status)
	r.states[attendanceCellKey(courseID, date, email)] = model.SyncOptimistic
	snapshot := table.Clone()
	r.mu.Unlock()

	r.cache.Save(ctx, cache.AttendanceKey(courseID), snapshot)
	r.propagateAttendanceCell(courseID, date, email, status)
	return nil
}

// AddResource prepends a resource to its course's list and propagates the
// whole list.
func (r *Reconciler) AddResource(ctx context.Context, res model.Resource) error {
	if !r.catalog.HasCourse(res.CourseID) {
		return fmt.Errorf("%w: unknown course %q", model.ErrValidation, res.CourseID)
	}
	if strings.TrimSpace(res.Title) == "" {
		return fmt.Errorf("%w: missing resource title", model.ErrValidation)
	}
	if res.ID == "" {
		res.ID = "res-" + uuid.NewString()
	}
	if res.Date == "" {
		res.Date = time.Now().UTC().Format("2006-01-02")
	}
	if res.Link == "" {
		res.Link = "#"
	}
	if res.Type != "link" {
		res.Type = "file"
	}

	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: no active session", model.ErrValidation)
	}
	if !model.Can(r.session.Role, model.CapAddResource) {
		role := r.session.Role
		r.mu.Unlock()
		return fmt.Errorf("%w: role %s cannot add resources", model.ErrValidation, role)
	}
	list := append([]model.Resource{res}, r.resources[res.CourseID]...)
	r.resources[res.CourseID] = list
	r.states[resourcesKey(res.CourseID)] = model.SyncOptimistic
	listSnapshot := append([]model.Resource(nil), list...)
	mapSnapshot := r.resourcesMapLocked()
	r.mu.Unlock()

	r.cache.Save(ctx, cache.KeyResources, mapSnapshot)
	r.propagateResources(res.CourseID, listSnapshot)
	return nil
}

// Background propagation

func (r *Reconciler) opCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseCtx
}

func (r *Reconciler) propagateRoster(record model.StudentRecord) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := r.opCtx()
		err := r.rosterStore.Upsert(ctx, record)
		r.finishWrite("roster", rosterKey(record.Email), err)
	}()
}

func (r *Reconciler) propagateAttendanceCell(courseID, date, email string, status model.AttendanceStatus) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := r.opCtx()
		err := r.attendanceStore.SetCell(ctx, courseID, date, email, status)
		r.finishWrite("attendance", attendanceCellKey(courseID, date, email), err)
	}()
}

func (r *Reconciler) propagateResources(courseID string, list []model.Resource) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := r.opCtx()
		err := r.resourceStore.SaveResources(ctx, courseID, list)
		r.finishWrite("resources", resourcesKey(courseID), err)
	}()
}

// finishWrite moves the entity's sync state to confirmed or stale. A stale
// entity stays stale until the next successful write or refresh; there is
// no automatic retry.
func (r *Reconciler) finishWrite(store, key string, err error) {
	r.mu.Lock()
	if err != nil {
		r.states[key] = model.SyncStale
	} else {
		r.states[key] = model.SyncConfirmed
	}
	r.mu.Unlock()

	if err != nil {
		remoteWrites.WithLabelValues(store, "failure").Inc()
		r.log.Warn("remote write failed, local state diverged",
			zap.String("store", store), zap.String("entity", key), zap.Error(err))
		return
	}
	remoteWrites.WithLabelValues(store, "success").Inc()
}

// Local cache flushing

// scheduleRosterFlushLocked coalesces a burst of roster mutations into a
// single cache write: the first mutation arms the timer, later ones in the
// window ride along since the flush snapshots at fire time. Each timer
// fires at most once, so flushDone is closed exactly once.
func (r *Reconciler) scheduleRosterFlushLocked() {
	if r.debounce <= 0 {
		r.cache.Save(r.baseCtx, cache.KeyRoster, r.rosterSliceLocked())
		return
	}
	if r.flushTimer != nil {
		return
	}
	done := make(chan struct{})
	r.flushDone = done
	r.flushTimer = time.AfterFunc(r.debounce, func() {
		defer close(done)
		r.mu.Lock()
		r.flushTimer = nil
		r.flushDone = nil
		ctx := r.baseCtx
		r.mu.Unlock()
		r.flushRosterCache(ctx)
	})
}

func (r *Reconciler) flushRosterCache(ctx context.Context) {
	r.mu.Lock()
	snapshot := r.rosterSliceLocked()
	r.mu.Unlock()
	r.cache.Save(ctx, cache.KeyRoster, snapshot)
}

func (r *Reconciler) rosterSliceLocked() []model.StudentRecord {
	records := make([]model.StudentRecord, 0, len(r.roster))
	for _, rec := range r.roster {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Email < records[j].Email })
	return records
}

func (r *Reconciler) resourcesMapLocked() map[string][]model.Resource {
	out := make(map[string][]model.Resource, len(r.resources))
	for courseID, list := range r.resources {
		out[courseID] = append([]model.Resource(nil), list...)
	}
	return out
}

// SnapshotToCache persists the full in-memory state to the local cache.
// Used by the periodic snapshot job and at shutdown.
func (r *Reconciler) SnapshotToCache(ctx context.Context) {
	r.mu.Lock()
	rosterSnapshot := r.rosterSliceLocked()
	resourcesSnapshot := r.resourcesMapLocked()
	attendanceSnapshots := make(map[string]model.AttendanceTable, len(r.attendance))
	for courseID, table := range r.attendance {
		attendanceSnapshots[courseID] = table.Clone()
	}
	var sessionSnapshot *model.SessionIdentity
	if r.session != nil {
		s := r.session.Clone()
		sessionSnapshot = &s
	}
	r.mu.Unlock()

	r.cache.Save(ctx, cache.KeyRoster, rosterSnapshot)
	r.cache.Save(ctx, cache.KeyResources, resourcesSnapshot)
	for courseID, table := range attendanceSnapshots {
		r.cache.Save(ctx, cache.AttendanceKey(courseID), table)
	}
	if sessionSnapshot != nil {
		r.cache.Save(ctx, cache.KeySession, *sessionSnapshot)
	}
}

// Wait blocks until in-flight background writes finish and the pending
// debounced flush, if any, has run. A timer that already fired is joined
// through its done channel so Wait never returns mid-flush. Called at
// shutdown.
func (r *Reconciler) Wait() {
	r.mu.Lock()
	timer := r.flushTimer
	done := r.flushDone
	r.flushTimer = nil
	r.flushDone = nil
	ctx := r.baseCtx
	r.mu.Unlock()
	if timer != nil {
		if timer.Stop() {
			r.flushRosterCache(ctx)
		} else {
			<-done
		}
	}
	r.wg.Wait()
}
