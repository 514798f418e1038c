package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"oikos/lms/internal/catalog"
	"oikos/lms/internal/model"
)

// RosterAccess is the slice of the reconciler the login flow needs.
type RosterAccess interface {
	LookupStudent(email string) (model.StudentRecord, bool)
	InsertStudent(ctx context.Context, record model.StudentRecord)
	SetSession(ctx context.Context, identity model.SessionIdentity)
	ClearSession(ctx context.Context)
	RememberEmail(ctx context.Context, email string, remember bool)
}

// Resolver turns a login request into a session identity. There is no
// password: identity is the email plus, for staff roles, membership on the
// catalog allow-list.
type Resolver struct {
	catalog *catalog.Catalog
	roster  RosterAccess
	log     *zap.Logger
}

func NewResolver(cat *catalog.Catalog, roster RosterAccess, log *zap.Logger) *Resolver {
	return &Resolver{catalog: cat, roster: roster, log: log}
}

// Login resolves an identity and installs it as the active session.
//
// Staff logins are checked against the allow-lists and take the catalog
// name, not the submitted one; staff are treated as registered to every
// catalog course. Student logins adopt the existing roster record when one
// exists, otherwise a new record is created, which requires a non-empty
// name. A failed login mutates nothing.
func (r *Resolver) Login(ctx context.Context, email, name string, role model.Role, remember bool) (model.SessionIdentity, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return model.SessionIdentity{}, fmt.Errorf("%w: missing email", model.ErrValidation)
	}
	name = strings.TrimSpace(name)

	var identity model.SessionIdentity
	switch role {
	case model.RoleProfessor:
		prof, ok := r.catalog.ProfessorByEmail(email)
		if !ok {
			return model.SessionIdentity{}, fmt.Errorf("%w: %s is not on the professor list", model.ErrUnauthorizedIdentity, email)
		}
		identity = model.SessionIdentity{
			Email:               email,
			Name:                prof.Name,
			Role:                model.RoleProfessor,
			RegisteredCourseIDs: r.catalog.CourseIDs(),
		}

	case model.RoleAdmin:
		admin, ok := r.catalog.AdminByEmail(email)
		if !ok {
			return model.SessionIdentity{}, fmt.Errorf("%w: %s is not on the admin list", model.ErrUnauthorizedIdentity, email)
		}
		identity = model.SessionIdentity{
			Email:               email,
			Name:                admin.Name,
			Role:                model.RoleAdmin,
			RegisteredCourseIDs: r.catalog.CourseIDs(),
		}

	case model.RoleStudent:
		if record, ok := r.roster.LookupStudent(email); ok {
			identity = model.SessionIdentity{
				Email:               email,
				Name:                record.Name,
				Role:                model.RoleStudent,
				RegisteredCourseIDs: append([]string(nil), record.RegisteredCourseIDs...),
			}
			break
		}
		if name == "" {
			return model.SessionIdentity{}, fmt.Errorf("%w: new students must supply a name", model.ErrValidation)
		}
		r.roster.InsertStudent(ctx, model.StudentRecord{
			Email:               email,
			Name:                name,
			RegisteredCourseIDs: []string{},
		})
		identity = model.SessionIdentity{
			Email:               email,
			Name:                name,
			Role:                model.RoleStudent,
			RegisteredCourseIDs: []string{},
		}

	default:
		return model.SessionIdentity{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}

	r.roster.SetSession(ctx, identity)
	r.roster.RememberEmail(ctx, email, remember)
	r.log.Info("session opened",
		zap.String("email", email), zap.String("role", string(identity.Role)))
	return identity, nil
}

// Logout drops the active session. The remembered email survives.
func (r *Resolver) Logout(ctx context.Context) {
	r.roster.ClearSession(ctx)
	r.log.Info("session closed")
}
