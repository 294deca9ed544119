package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hurl365/rest-db-starter/db"
	"github.com/hurl365/rest-db-starter/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// UserStore interface
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrMissingID is returned when an operation needs an id and got none.
	ErrMissingID = errors.New("repo/user: missing id")

	// ErrEmptyName is returned when a first or last name is empty.
	ErrEmptyName = errors.New("repo/user: first and last name are required")
)

// UserStore is the data-access contract for the users table. Every call runs
// exactly one statement; nothing is cached between calls.
type UserStore interface {
	Create(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	Read(ctx context.Context, id *int64) ([]models.User, error)
	Update(ctx context.Context, params models.UpdateUserParams) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// userRepo
// ─────────────────────────────────────────────────────────────────────────────

type userRepo struct {
	q db.Querier
}

// NewUserRepo returns a UserStore backed by q.
func NewUserRepo(q db.Querier) UserStore {
	return &userRepo{q: q}
}

// Placeholders are "?" and rebound by db for the active driver.
const (
	sqlInsertUser = `
		INSERT INTO users (first_name, last_name)
		VALUES (?, ?)`

	sqlSelectUsers = `
		SELECT id, first_name, last_name
		FROM   users`

	sqlSelectUserByID = `
		SELECT id, first_name, last_name
		FROM   users
		WHERE  id = ?`

	sqlUpdateUser = `
		UPDATE users
		SET    first_name = ?, last_name = ?
		WHERE  id = ?`

	sqlDeleteUser = `
		DELETE FROM users WHERE id = ?`
)

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a user and returns it with the database-assigned id.
func (r *userRepo) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	if params.FirstName == "" || params.LastName == "" {
		return nil, ErrEmptyName
	}

	u := &models.User{FirstName: params.FirstName, LastName: params.LastName}

	// lib/pq does not implement LastInsertId.
	if r.q.DriverName() == "postgres" {
		if err := r.q.QueryRow(ctx, sqlInsertUser+" RETURNING id", params.FirstName, params.LastName).Scan(&u.ID); err != nil {
			return nil, fmt.Errorf("repo/user: insert: %w", err)
		}
		return u, nil
	}

	res, err := r.q.Exec(ctx, sqlInsertUser, params.FirstName, params.LastName)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("repo/user: last insert id: %w", err)
	}
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read
// ─────────────────────────────────────────────────────────────────────────────

// Read returns every user when id is nil, otherwise the zero or one user with
// that id. The slice is never nil.
func (r *userRepo) Read(ctx context.Context, id *int64) ([]models.User, error) {
	users := []models.User{}

	var err error
	if id == nil {
		err = r.q.Select(ctx, &users, sqlSelectUsers)
	} else {
		err = r.q.Select(ctx, &users, sqlSelectUserByID, *id)
	}
	if err != nil {
		return []models.User{}, fmt.Errorf("repo/user: select: %w", err)
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

// Update replaces both names of one user. It reports whether a row matched;
// invalid input is rejected before any statement runs.
func (r *userRepo) Update(ctx context.Context, params models.UpdateUserParams) (bool, error) {
	if params.ID == 0 {
		return false, ErrMissingID
	}
	if params.FirstName == "" || params.LastName == "" {
		return false, ErrEmptyName
	}

	res, err := r.q.Exec(ctx, sqlUpdateUser, params.FirstName, params.LastName, params.ID)
	if err != nil {
		return false, fmt.Errorf("repo/user: update %d: %w", params.ID, err)
	}
	return affected(res)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes one user by id and reports whether a row was removed.
func (r *userRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if id == 0 {
		return false, ErrMissingID
	}

	res, err := r.q.Exec(ctx, sqlDeleteUser, id)
	if err != nil {
		return false, fmt.Errorf("repo/user: delete %d: %w", id, err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/user: rows affected: %w", err)
	}
	return n > 0, nil
}

var _ UserStore = (*userRepo)(nil)
