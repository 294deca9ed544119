package models

// User represents a row in the "users" table.
type User struct {
	ID        int64  `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// CreateUserParams holds the fields required to create a new user.
type CreateUserParams struct {
	FirstName string
	LastName  string
}

// UpdateUserParams replaces both names of the user identified by ID.
// A zero ID means the id is missing.
type UpdateUserParams struct {
	ID        int64
	FirstName string
	LastName  string
}
