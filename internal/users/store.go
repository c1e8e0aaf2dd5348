package users

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/validate"
)

// BcryptCost is lowered by tests.
var BcryptCost = 12

var ErrBadCredentials = errors.New("invalid credentials")

type Store struct {
	db *sqlx.DB
}

func NewStore(dbh *sqlx.DB) *Store { return &Store{db: dbh} }

func (s *Store) Create(ctx context.Context, username, name, email, role, password string) (User, error) {
	if !ValidRole(role) {
		return User{}, fmt.Errorf("role %q: %w", role, apperr.ErrInvalid)
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return User{}, fmt.Errorf("username and password required: %w", apperr.ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().Unix(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, name, email, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Name, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("username %q: %w", u.Username, apperr.ErrConflict)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id=$1`, id)
	if db.IsNoRows(err) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username=$1`, username)
	if db.IsNoRows(err) {
		return User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return u, err
}

func (s *Store) List(ctx context.Context, role string) ([]User, error) {
	out := []User{}
	var err error
	if role == "" {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM users ORDER BY username`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM users WHERE role=$1 ORDER BY username`, role)
	}
	return out, err
}

// Authenticate checks username/password and returns the user.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *Store) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password required: %w", apperr.ErrInvalid)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return fmt.Errorf("incorrect old password: %w", apperr.ErrForbidden)
	}
	return s.setHash(ctx, u.ID, newPassword)
}

// SetPassword resets a password by username or email (admin CLI).
func (s *Store) SetPassword(ctx context.Context, login, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password required: %w", apperr.ErrInvalid)
	}
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM users WHERE username=$1 OR email=$1`, login)
	if db.IsNoRows(err) {
		return fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return s.setHash(ctx, id, newPassword)
}

func (s *Store) setHash(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id)
	return err
}

// BulkUpsert inserts or updates rows in one transaction. New users need a
// password; existing users keep their hash unless one is given.
func (s *Store) BulkUpsert(ctx context.Context, rows []Row) (inserted, updated int, err error) {
	for i := range rows {
		if rows[i].Role == "" {
			rows[i].Role = RoleStudent
		}
		rows[i].Role = strings.ToLower(rows[i].Role)
		if verr := validate.Struct(rows[i]); verr != nil {
			return 0, 0, fmt.Errorf("row %d: %w", i+1, verr)
		}
	}
	now := time.Now().Unix()
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			var phash string
			if r.Password != "" {
				b, e := bcrypt.GenerateFromPassword([]byte(r.Password), BcryptCost)
				if e != nil {
					return e
				}
				phash = string(b)
			}

			var existingID string
			e := tx.GetContext(ctx, &existingID, `SELECT id FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username)
			switch {
			case e == nil:
				if phash != "" {
					_, e = tx.ExecContext(ctx, `UPDATE users SET username=$1, name=$2, email=$3, role=$4, password_hash=$5 WHERE id=$6`,
						r.Username, r.Name, r.Email, r.Role, phash, existingID)
				} else {
					_, e = tx.ExecContext(ctx, `UPDATE users SET username=$1, name=$2, email=$3, role=$4 WHERE id=$5`,
						r.Username, r.Name, r.Email, r.Role, existingID)
				}
				if e != nil {
					return e
				}
				updated++
			case db.IsNoRows(e):
				if phash == "" {
					return fmt.Errorf("password required for new user %s: %w", r.Username, apperr.ErrInvalid)
				}
				id := r.ID
				if id == "" {
					id = uuid.NewString()
				}
				if _, e = tx.ExecContext(ctx,
					`INSERT INTO users (id, username, name, email, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
					id, r.Username, r.Name, r.Email, r.Role, phash, now); e != nil {
					return e
				}
				inserted++
			default:
				return e
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// ParseCSV reads rows with a header containing at least username; id, name,
// email, role and password are optional.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["username"]; !ok {
		return nil, fmt.Errorf("missing column: username: %w", apperr.ErrInvalid)
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			ID:       col(rec, "id"),
			Username: col(rec, "username"),
			Name:     col(rec, "name"),
			Email:    col(rec, "email"),
			Role:     strings.ToLower(col(rec, "role")),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}
