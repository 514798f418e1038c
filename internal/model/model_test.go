package model

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		" Park@Oikos.AC.KR ":    "park@oikos.ac.kr",
		"park@oikos.ac.kr":      "park@oikos.ac.kr",
		"\tUPPER@EXAMPLE.EDU\n": "upper@example.edu",
		"":                      "",
	}
	for input, want := range cases {
		if got := NormalizeEmail(input); got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, input := range []string{"STUDENT", "student", " Professor ", "ADMIN"} {
		if _, ok := ParseRole(input); !ok {
			t.Fatalf("expected %q to parse", input)
		}
	}
	if _, ok := ParseRole("dean"); ok {
		t.Fatalf("unexpected role parsed")
	}
}

func TestNextAttendanceStatusCycle(t *testing.T) {
	steps := []struct {
		from AttendanceStatus
		to   AttendanceStatus
	}{
		{AttendanceUnset, AttendancePresent},
		{AttendancePresent, AttendanceAbsent},
		{AttendanceAbsent, AttendanceLate},
		{AttendanceLate, AttendancePresent},
	}
	for _, step := range steps {
		if got := NextAttendanceStatus(step.from); got != step.to {
			t.Fatalf("next(%q) = %q, want %q", step.from, got, step.to)
		}
	}
	// Every defined status maps into the cycle, nothing maps back to unset.
	for _, status := range []AttendanceStatus{AttendanceUnset, AttendancePresent, AttendanceAbsent, AttendanceLate} {
		if NextAttendanceStatus(status) == AttendanceUnset {
			t.Fatalf("cycle must never produce the unset status")
		}
	}
}

func TestParseAttendanceStatus(t *testing.T) {
	for _, valid := range []string{"present", "absent", "late"} {
		if _, ok := ParseAttendanceStatus(valid); !ok {
			t.Fatalf("expected %q to parse", valid)
		}
	}
	for _, invalid := range []string{"", "PRESENT", "excused"} {
		if _, ok := ParseAttendanceStatus(invalid); ok {
			t.Fatalf("unexpected parse of %q", invalid)
		}
	}
}

func TestAttendanceTableCells(t *testing.T) {
	table := AttendanceTable{}
	if got := table.Cell("Mar 9", "a@x.kr"); got != AttendanceUnset {
		t.Fatalf("missing cell should be unset, got %q", got)
	}
	table.SetCell("Mar 9", "a@x.kr", AttendanceLate)
	if got := table.Cell("Mar 9", "a@x.kr"); got != AttendanceLate {
		t.Fatalf("cell readback: %q", got)
	}

	clone := table.Clone()
	clone.SetCell("Mar 9", "a@x.kr", AttendancePresent)
	if table.Cell("Mar 9", "a@x.kr") != AttendanceLate {
		t.Fatalf("clone must not alias the original")
	}
}

func TestCloneDetachesCourseIDs(t *testing.T) {
	rec := StudentRecord{Email: "a@x.kr", RegisteredCourseIDs: []string{"c1"}}
	clone := rec.Clone()
	clone.RegisteredCourseIDs[0] = "c2"
	if rec.RegisteredCourseIDs[0] != "c1" {
		t.Fatalf("clone must not alias the original slice")
	}
}

func TestCapabilities(t *testing.T) {
	if !Can(RoleStudent, CapRegister) {
		t.Fatalf("students register for courses")
	}
	if Can(RoleStudent, CapMarkAttendance) || Can(RoleStudent, CapViewRoster) {
		t.Fatalf("students must not hold staff capabilities")
	}
	for _, role := range []Role{RoleProfessor, RoleAdmin} {
		if !Can(role, CapMarkAttendance) || !Can(role, CapAddResource) || !Can(role, CapViewRoster) {
			t.Fatalf("staff role %s missing a capability", role)
		}
		if Can(role, CapRegister) {
			t.Fatalf("staff role %s must not change registrations", role)
		}
	}
	if !Can(RoleStudent, CapExportBackup) || !Can(RoleAdmin, CapExportBackup) {
		t.Fatalf("every role can export its own backup")
	}
}
