package domain

// Role distinguishes the callers the API serves. Accounts live in the identity
// service; the engine only sees the role carried by the access token.
type Role string

const (
	RoleCoach   Role = "coach"
	RoleAthlete Role = "athlete"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsCoach() bool {
	return c.Role == RoleCoach
}
