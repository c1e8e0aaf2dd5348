package course

type Semester struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name" validate:"notblank"`
	StartsOn string `json:"starts_on" db:"starts_on" validate:"omitempty,datetime=2006-01-02"`
	EndsOn   string `json:"ends_on" db:"ends_on" validate:"omitempty,datetime=2006-01-02"`
}

type Course struct {
	ID         string `json:"id" db:"id"`
	Code       string `json:"code" db:"code" validate:"notblank,max=32"`
	Name       string `json:"name" db:"name" validate:"notblank"`
	SemesterID string `json:"semester_id" db:"semester_id" validate:"required"`
	CreatedBy  string `json:"created_by" db:"created_by"`
	CreatedAt  int64  `json:"created_at" db:"created_at"`
}

type Enrollment struct {
	StudentID string `json:"student_id" db:"student_id"`
	Username  string `json:"username" db:"username"`
	Name      string `json:"name" db:"name"`
	Status    string `json:"status" db:"status"`
}

const (
	StatusActive  = "active"
	StatusInvited = "invited"
	StatusDropped = "dropped"
)

// Viewer is the caller a listing is scoped to.
type Viewer struct {
	ID   string
	Role string
}

type ListOpts struct {
	Q          string
	SemesterID string
	Limit      int
	Offset     int
}

type Patch struct {
	Code       *string `json:"code,omitempty" validate:"omitempty,notblank,max=32"`
	Name       *string `json:"name,omitempty" validate:"omitempty,notblank"`
	SemesterID *string `json:"semester_id,omitempty"`
}
