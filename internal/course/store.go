package course

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/apperr"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/validate"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(dbh *sqlx.DB) *Store { return &Store{db: dbh} }

func (s *Store) CreateSemester(ctx context.Context, sem Semester) (Semester, error) {
	if err := validate.Struct(sem); err != nil {
		return Semester{}, err
	}
	if sem.StartsOn != "" && sem.EndsOn != "" && sem.EndsOn < sem.StartsOn {
		return Semester{}, apperr.NewValidationError(apperr.FieldError{Field: "ends_on", Message: "must not be before starts_on"})
	}
	sem.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO semesters (id, name, starts_on, ends_on) VALUES ($1,$2,$3,$4)`,
		sem.ID, strings.TrimSpace(sem.Name), sem.StartsOn, sem.EndsOn)
	if db.IsUniqueViolation(err) {
		return Semester{}, fmt.Errorf("semester %q: %w", sem.Name, apperr.ErrConflict)
	}
	return sem, err
}

func (s *Store) ListSemesters(ctx context.Context) ([]Semester, error) {
	out := []Semester{}
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM semesters ORDER BY starts_on DESC, name`)
	return out, err
}

// Create inserts a course; the creator becomes its first manager.
func (s *Store) Create(ctx context.Context, c Course) (Course, error) {
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	if err := validate.Struct(c); err != nil {
		return Course{}, err
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM semesters WHERE id=$1`, c.SemesterID); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("semester %s: %w", c.SemesterID, apperr.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO courses (id, code, name, semester_id, created_by, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			c.ID, c.Code, c.Name, c.SemesterID, c.CreatedBy, c.CreatedAt); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("course %s in semester: %w", c.Code, apperr.ErrConflict)
			}
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO course_managers (course_id, user_id) VALUES ($1,$2)`, c.ID, c.CreatedBy)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.GetContext(ctx, &c, `SELECT * FROM courses WHERE id=$1`, id)
	if db.IsNoRows(err) {
		return Course{}, fmt.Errorf("course %s: %w", id, apperr.ErrNotFound)
	}
	return c, err
}

// List returns courses visible to v: admins see all, managers the courses
// they manage, students the courses they are actively enrolled in.
func (s *Store) List(ctx context.Context, v Viewer, opts ListOpts) ([]Course, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	sb.WriteString(`SELECT c.* FROM courses c`)
	switch {
	case v.Role == "admin":
		sb.WriteString(` WHERE 1=1`)
	case v.Role == "manager":
		sb.WriteString(` JOIN course_managers m ON m.course_id=c.id WHERE m.user_id=` + arg(v.ID))
	default:
		sb.WriteString(` JOIN course_students e ON e.course_id=c.id WHERE e.student_id=` + arg(v.ID) + ` AND e.status='active'`)
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		p := arg("%" + strings.ToLower(q) + "%")
		sb.WriteString(` AND (LOWER(c.name) LIKE ` + p + ` OR LOWER(c.code) LIKE ` + p + `)`)
	}
	if opts.SemesterID != "" {
		sb.WriteString(` AND c.semester_id=` + arg(opts.SemesterID))
	}
	sb.WriteString(` ORDER BY c.created_at DESC, c.code LIMIT ` + arg(limit) + ` OFFSET ` + arg(opts.Offset))

	out := []Course{}
	if err := s.db.SelectContext(ctx, &out, sb.String(), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, p Patch) (Course, error) {
	if err := validate.Struct(p); err != nil {
		return Course{}, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if p.Code != nil {
		c.Code = strings.TrimSpace(*p.Code)
	}
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.SemesterID != nil {
		c.SemesterID = *p.SemesterID
	}
	_, err = s.db.ExecContext(ctx, `UPDATE courses SET code=$1, name=$2, semester_id=$3 WHERE id=$4`,
		c.Code, c.Name, c.SemesterID, c.ID)
	if db.IsUniqueViolation(err) {
		return Course{}, fmt.Errorf("course %s in semester: %w", c.Code, apperr.ErrConflict)
	}
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("course %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) AddManagers(ctx context.Context, courseID string, userIDs []string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, uid := range userIDs {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO course_managers (course_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, courseID, uid); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnrollStudents upserts enrollments; unknown statuses fall back to active.
func (s *Store) EnrollStudents(ctx context.Context, courseID string, userIDs []string, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != StatusInvited && status != StatusDropped {
		status = StatusActive
	}
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, uid := range userIDs {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO course_students (course_id, student_id, status) VALUES ($1,$2,$3)
				ON CONFLICT (course_id, student_id) DO UPDATE SET status=EXCLUDED.status`, courseID, uid, status); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListStudents(ctx context.Context, courseID string) ([]Enrollment, error) {
	out := []Enrollment{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT e.student_id, COALESCE(u.username, '') AS username, COALESCE(u.name, '') AS name, e.status
		  FROM course_students e
		  LEFT JOIN users u ON u.id=e.student_id
		 WHERE e.course_id=$1
		 ORDER BY username, e.student_id`, courseID)
	return out, err
}

func (s *Store) IsManager(ctx context.Context, userID, courseID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM course_managers WHERE course_id=$1 AND user_id=$2`, courseID, userID)
	return n > 0, err
}

func (s *Store) IsStudent(ctx context.Context, userID, courseID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM course_students WHERE course_id=$1 AND student_id=$2 AND status='active'`, courseID, userID)
	return n > 0, err
}

// CanManage is true for admins and the course's managers.
func (s *Store) CanManage(ctx context.Context, v Viewer, courseID string) (bool, error) {
	if v.Role == "admin" {
		return true, nil
	}
	if v.Role != "manager" {
		return false, nil
	}
	return s.IsManager(ctx, v.ID, courseID)
}

// CanView adds active students to CanManage.
func (s *Store) CanView(ctx context.Context, v Viewer, courseID string) (bool, error) {
	ok, err := s.CanManage(ctx, v, courseID)
	if err != nil || ok {
		return ok, err
	}
	return s.IsStudent(ctx, v.ID, courseID)
}
