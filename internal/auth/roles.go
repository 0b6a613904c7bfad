package auth

import (
	"fmt"
	"strings"

	"rollcall/internal/apperr"
)

// Role is an operator role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Permission names one guarded action.
type Permission string

const (
	ManageSubjects    Permission = "manage_subjects"
	IssueSessions     Permission = "issue_sessions"
	RecordAttendance  Permission = "record_attendance"
	CheckIn           Permission = "check_in"
	ViewAttendance    Permission = "view_attendance"
	ReviewLeave       Permission = "review_leave"
	ManageUsers       Permission = "manage_users"
	ExportData        Permission = "export_data"
	ViewOwnAttendance Permission = "view_own_attendance"
	SubmitLeave       Permission = "submit_leave"
	ViewProfile       Permission = "view_profile"
)

var grants = map[Role][]Permission{
	RoleAdmin:   {ManageSubjects, IssueSessions, ViewAttendance, RecordAttendance, ReviewLeave, ManageUsers, ExportData},
	RoleTeacher: {RecordAttendance, ViewAttendance, IssueSessions, ReviewLeave},
	RoleStudent: {ViewOwnAttendance, SubmitLeave, ViewProfile, CheckIn},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := grants[r]; !ok {
		return "", fmt.Errorf("role %q: %w", s, apperr.ErrInvalid)
	}
	return r, nil
}

// Can reports whether r is granted p.
func (r Role) Can(p Permission) bool {
	for _, g := range grants[r] {
		if g == p {
			return true
		}
	}
	return false
}
