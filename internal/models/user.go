package models

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account with a metered credit balance. Balance is mutated only
// through the ledger's atomic update, never by direct assignment.
type User struct {
	ID        string
	Email     string
	Password  string // bcrypt hash
	Name      string
	Role      string
	Balance   int64
	Disabled  bool
	CreatedAt int64 // unix ms
	UpdatedAt int64
}
