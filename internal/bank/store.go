package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/validate"
)

// Viewer is the caller whose access is being checked.
type Viewer struct {
	ID   string
	Role string
}

func (v Viewer) admin() bool { return v.Role == "admin" }

type Store struct {
	db *sqlx.DB
}

func NewStore(dbh *sqlx.DB) *Store { return &Store{db: dbh} }

// Create stores a bank and makes its creator the owner.
func (s *Store) Create(ctx context.Context, b Bank) (Bank, error) {
	b.Name = strings.TrimSpace(b.Name)
	if err := validate.Struct(b); err != nil {
		return Bank{}, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().Unix()
	b.Access = AccessOwner
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO banks (id, name, description, created_by, created_at) VALUES ($1,$2,$3,$4,$5)`,
			b.ID, b.Name, b.Description, b.CreatedBy, b.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO bank_shares (bank_id, user_id, access) VALUES ($1,$2,$3)`, b.ID, b.CreatedBy, AccessOwner)
		return err
	})
	if err != nil {
		return Bank{}, err
	}
	return b, nil
}

// AccessFor returns the viewer's access level on a bank, or ErrNotFound if
// the bank does not exist.
func (s *Store) AccessFor(ctx context.Context, bankID string, v Viewer) (string, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM banks WHERE id=$1`, bankID); err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("bank %s: %w", bankID, apperr.ErrNotFound)
	}
	if v.admin() {
		return AccessOwner, nil
	}
	var access string
	err := s.db.GetContext(ctx, &access, `SELECT access FROM bank_shares WHERE bank_id=$1 AND user_id=$2`, bankID, v.ID)
	if db.IsNoRows(err) {
		return AccessNone, nil
	}
	return access, err
}

// require returns ErrNotFound when the viewer cannot see the bank at all and
// ErrForbidden when it can but lacks want.
func (s *Store) require(ctx context.Context, bankID string, v Viewer, want string) error {
	have, err := s.AccessFor(ctx, bankID, v)
	if err != nil {
		return err
	}
	if have == AccessNone {
		return fmt.Errorf("bank %s: %w", bankID, apperr.ErrNotFound)
	}
	if !AtLeast(have, want) {
		return fmt.Errorf("bank %s needs %s access: %w", bankID, want, apperr.ErrForbidden)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bankID string, v Viewer) (Bank, error) {
	if err := s.require(ctx, bankID, v, AccessViewer); err != nil {
		return Bank{}, err
	}
	var b Bank
	if err := s.db.GetContext(ctx, &b, `SELECT * FROM banks WHERE id=$1`, bankID); err != nil {
		return Bank{}, err
	}
	b.Access, _ = s.AccessFor(ctx, bankID, v)
	return b, nil
}

// List returns the banks the viewer owns or has been shared; admins see all.
func (s *Store) List(ctx context.Context, v Viewer) ([]Bank, error) {
	out := []Bank{}
	var err error
	if v.admin() {
		err = s.db.SelectContext(ctx, &out, `SELECT b.*, 'owner' AS access FROM banks b ORDER BY b.name`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT b.*, s.access FROM banks b
			JOIN bank_shares s ON s.bank_id=b.id WHERE s.user_id=$1 ORDER BY b.name`, v.ID)
	}
	return out, err
}

func (s *Store) Update(ctx context.Context, bankID string, v Viewer, name, description *string) (Bank, error) {
	if err := s.require(ctx, bankID, v, AccessEditor); err != nil {
		return Bank{}, err
	}
	b, err := s.Get(ctx, bankID, v)
	if err != nil {
		return Bank{}, err
	}
	if name != nil {
		b.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		b.Description = *description
	}
	if err := validate.Struct(b); err != nil {
		return Bank{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE banks SET name=$1, description=$2 WHERE id=$3`, b.Name, b.Description, b.ID)
	return b, err
}

func (s *Store) Delete(ctx context.Context, bankID string, v Viewer) error {
	if err := s.require(ctx, bankID, v, AccessOwner); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM banks WHERE id=$1`, bankID)
	return err
}

// Share grants or changes access for each user. Demoting the last owner is
// refused.
func (s *Store) Share(ctx context.Context, bankID string, v Viewer, userIDs []string, access string) error {
	if accessRank(access) == 0 {
		return apperr.NewValidationError(apperr.FieldError{Field: "access", Message: "must be one of owner editor viewer"})
	}
	if err := s.require(ctx, bankID, v, AccessOwner); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, uid := range userIDs {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO bank_shares (bank_id, user_id, access) VALUES ($1,$2,$3)
				ON CONFLICT (bank_id, user_id) DO UPDATE SET access=EXCLUDED.access`, bankID, uid, access); err != nil {
				return err
			}
		}
		return ensureOwner(ctx, tx, bankID)
	})
}

// Unshare removes users from a bank. Removing the last owner is refused.
func (s *Store) Unshare(ctx context.Context, bankID string, v Viewer, userIDs []string) error {
	if err := s.require(ctx, bankID, v, AccessOwner); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, uid := range userIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM bank_shares WHERE bank_id=$1 AND user_id=$2`, bankID, uid); err != nil {
				return err
			}
		}
		return ensureOwner(ctx, tx, bankID)
	})
}

func ensureOwner(ctx context.Context, tx *sqlx.Tx, bankID string) error {
	var owners int
	if err := tx.GetContext(ctx, &owners, `SELECT COUNT(*) FROM bank_shares WHERE bank_id=$1 AND access='owner'`, bankID); err != nil {
		return err
	}
	if owners == 0 {
		return fmt.Errorf("bank %s must keep an owner: %w", bankID, apperr.ErrConflict)
	}
	return nil
}

func (s *Store) Shares(ctx context.Context, bankID string, v Viewer) ([]Share, error) {
	if err := s.require(ctx, bankID, v, AccessViewer); err != nil {
		return nil, err
	}
	out := []Share{}
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM bank_shares WHERE bank_id=$1 ORDER BY access, user_id`, bankID)
	return out, err
}
