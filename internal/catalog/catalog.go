package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"oikos/lms/internal/model"
)

// Catalog is the static configuration the reconciliation core consumes
// read-only: the course list, the professor/admin allow-lists, and the
// informational data the UI renders as-is. Defined at process start,
// immutable thereafter.
type Catalog struct {
	Semester         Semester          `json:"semester"`
	Courses          []Course          `json:"courses"`
	Professors       []AllowedUser     `json:"professors"`
	Admins           []AllowedUser     `json:"admins"`
	Announcements    []Announcement    `json:"announcements"`
	DefenseSchedules []DefenseSchedule `json:"defenseSchedules"`
}

type Semester struct {
	Name         string `json:"name"`
	Registration string `json:"registration"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	TitleEn     string   `json:"titleEn"`
	Instructor  string   `json:"instructor"`
	Description string   `json:"description"`
	Dates       []string `json:"dates"`
	Type        string   `json:"type,omitempty"`
}

type AllowedUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Announcement struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type DefenseSchedule struct {
	Date     string   `json:"date"`
	Time     string   `json:"time"`
	Students []string `json:"students"`
}

// Load reads a catalog JSON file, or returns the compiled-in defaults when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cat.Courses) == 0 {
		return nil, fmt.Errorf("catalog %s has no courses", path)
	}
	return &cat, nil
}

func (c *Catalog) CourseByID(id string) (Course, bool) {
	for _, course := range c.Courses {
		if course.ID == id {
			return course, true
		}
	}
	return Course{}, false
}

func (c *Catalog) HasCourse(id string) bool {
	_, ok := c.CourseByID(id)
	return ok
}

// CourseIDs returns all catalog course ids in declaration order. Professor
// and admin sessions are registered to all of them by convention.
func (c *Catalog) CourseIDs() []string {
	ids := make([]string, 0, len(c.Courses))
	for _, course := range c.Courses {
		ids = append(ids, course.ID)
	}
	return ids
}

func (c *Catalog) ProfessorByEmail(email string) (AllowedUser, bool) {
	return findAllowed(c.Professors, email)
}

func (c *Catalog) AdminByEmail(email string) (AllowedUser, bool) {
	return findAllowed(c.Admins, email)
}

func findAllowed(list []AllowedUser, email string) (AllowedUser, bool) {
	normalized := model.NormalizeEmail(email)
	for _, entry := range list {
		if model.NormalizeEmail(entry.Email) == normalized {
			return entry, true
		}
	}
	return AllowedUser{}, false
}
