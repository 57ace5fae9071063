package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identity returns the user id, falling back to the registered sub claim.
func (c *JWTClaims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Role  UserRole
	Email string
}

// CanAccessSession reports whether the actor may read or act on a session
// booked by studentID with tutorID. Admins see everything, tutors only the
// sessions booked with them.
func (a Actor) CanAccessSession(studentID, tutorID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleTutor:
		return tutorID == a.ID
	}
	return studentID == a.ID
}
