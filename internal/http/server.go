package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"oikos/lms/internal/catalog"
	"oikos/lms/internal/config"
	"oikos/lms/internal/model"
	"oikos/lms/internal/reconcile"
	"oikos/lms/internal/session"
)

// Exporter produces the backup payload: every cached entry keyed without
// the namespace prefix.
type Exporter interface {
	ExportAll(ctx context.Context) (map[string]json.RawMessage, error)
}

type Server struct {
	cfg      config.Config
	rec      *reconcile.Reconciler
	sessions *session.Resolver
	catalog  *catalog.Catalog
	exporter Exporter
	validate *validator.Validate
	log      *zap.Logger
}

func NewServer(cfg config.Config, rec *reconcile.Reconciler, sessions *session.Resolver, cat *catalog.Catalog, exporter Exporter, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		rec:      rec,
		sessions: sessions,
		catalog:  cat,
		exporter: exporter,
		validate: validator.New(),
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/session", s.handleGetSession)
	r.Get("/catalog", s.handleGetCatalog)
	r.Get("/announcements", s.handleGetAnnouncements)
	r.Get("/defense-schedules", s.handleGetDefenseSchedules)

	r.With(s.requireSession).Get("/roster", s.handleGetRoster)
	r.With(s.requireSession).Post("/course/{courseId}/register", s.handleRegister)
	r.With(s.requireSession).Delete("/course/{courseId}/register", s.handleUnregister)
	r.With(s.requireSession).Get("/course/{courseId}/attendance", s.handleGetAttendance)
	r.With(s.requireSession).Post("/course/{courseId}/attendance", s.handleMarkAttendance)
	r.With(s.requireSession).Get("/course/{courseId}/resources", s.handleGetResources)
	r.With(s.requireSession).Post("/course/{courseId}/resources", s.handleAddResource)
	r.With(s.requireSession).Post("/refresh", s.handleRefresh)
	r.With(s.requireSession).Get("/sync/status", s.handleSyncStatus)
	r.With(s.requireSession).Get("/backup/export", s.handleBackupExport)

	return r
}

// Session gating

type identityKey struct{}

// requireSession rejects requests with no active session. When the caller
// sends X-User-Email it must match the active identity; a stale header
// means the caller is acting on someone else's session.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.rec.Session()
		if !ok {
			writeError(w, http.StatusUnauthorized, "no_session")
			return
		}
		if claimed := model.NormalizeEmail(r.Header.Get("X-User-Email")); claimed != "" && claimed != identity.Email {
			writeError(w, http.StatusUnauthorized, "session_mismatch")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) model.SessionIdentity {
	identity, _ := ctx.Value(identityKey{}).(model.SessionIdentity)
	return identity
}

// Requests

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name"`
	Role     string `json:"role" validate:"required"`
	Remember bool   `json:"remember"`
}

type markAttendanceRequest struct {
	Date   string `json:"date" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Status string `json:"status" validate:"omitempty,oneof=present absent late"`
}

type addResourceRequest struct {
	Title string `json:"title" validate:"required"`
	Type  string `json:"type" validate:"omitempty,oneof=file link"`
	Link  string `json:"link"`
	Date  string `json:"date"`
}

type sessionResponse struct {
	Session         *model.SessionIdentity `json:"session"`
	RememberedEmail string                 `json:"rememberedEmail,omitempty"`
}

// Handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}
	identity, err := s.sessions.Login(r.Context(), req.Email, req.Name, role, req.Remember)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: &identity, RememberedEmail: s.rec.RememberedEmail()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	resp := sessionResponse{RememberedEmail: s.rec.RememberedEmail()}
	if identity, ok := s.rec.Session(); ok {
		resp.Session = &identity
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleGetAnnouncements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Announcements)
}

func (s *Server) handleGetDefenseSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.DefenseSchedules)
}

func (s *Server) handleGetRoster(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if !model.Can(identity.Role, model.CapViewRoster) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, s.rec.Roster())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Register(r.Context(), chi.URLParam(r, "courseId")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Unregister(r.Context(), chi.URLParam(r, "courseId")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetAttendance returns the course table. Students only see their own
// row; staff see everything.
func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if !s.catalog.HasCourse(courseID) {
		writeError(w, http.StatusNotFound, "course_not_found")
		return
	}
	table := s.rec.AttendanceFor(courseID)
	identity := identityFromContext(r.Context())
	if identity.Role == model.RoleStudent {
		filtered := model.AttendanceTable{}
		for date, row := range table {
			if status, ok := row[identity.Email]; ok {
				filtered.SetCell(date, identity.Email, status)
			}
		}
		table = filtered
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	var req markAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.rec.MarkAttendance(r.Context(), courseID, req.Date, req.Email, model.AttendanceStatus(req.Status)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	table := s.rec.AttendanceFor(courseID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": table.Cell(req.Date, model.NormalizeEmail(req.Email)),
		"table":  table,
	})
}

func (s *Server) handleGetResources(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	if !s.catalog.HasCourse(courseID) {
		writeError(w, http.StatusNotFound, "course_not_found")
		return
	}
	writeJSON(w, http.StatusOK, s.rec.ResourcesFor(courseID))
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	var req addResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.rec.AddResource(r.Context(), model.Resource{
		CourseID: courseID,
		Title:    req.Title,
		Type:     req.Type,
		Link:     req.Link,
		Date:     req.Date,
	}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.rec.ResourcesFor(courseID))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Refresh(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rec.SyncSummary())
}

func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if !model.Can(identity.Role, model.CapExportBackup) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	entries, err := s.exporter.ExportAll(r.Context())
	if err != nil {
		s.log.Error("backup export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	filename := fmt.Sprintf("oikos-lms-backup-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writeJSON(w, http.StatusOK, entries)
}

// Helpers

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed")
	case errors.Is(err, model.ErrUnauthorizedIdentity):
		writeError(w, http.StatusUnauthorized, "unauthorized_identity")
	case errors.Is(err, model.ErrRemoteUnavailable):
		writeError(w, http.StatusServiceUnavailable, "remote_unavailable")
	default:
		s.log.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
