package auth

import "time"

type Role string

const (
	RoleParty    Role = "party"
	RoleOperator Role = "operator"
)

// Party is the domain representation of an authenticated caller. Handle is the
// identifier string used on-contract (as claimant, respondent, or resolver);
// the gateway derives the decide caller from the verified token, so a party
// cannot assert someone else's handle. The struct mirrors the parties table
// and should not include JSON annotations so it can be reused by different
// presentation layers.
type Party struct {
	ID           string
	Handle       string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains party registration data supplied by callers.
type RegisterRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains party login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
