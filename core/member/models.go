package member

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/beshoyehab/schoolbot/core"
)

// Role is one of the five fixed ranks, totally ordered: a higher rank may do
// everything a lower rank may do, plus more.
type Role int

const (
	RoleStudent Role = iota + 1
	RoleTeacher
	RoleLeader
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleStudent: "Student",
	RoleTeacher: "Teacher",
	RoleLeader:  "Leader",
	RoleManager: "Manager",
	RoleAdmin:   "Admin",
}

// Roles lists all assignable roles for UI pickers.
var Roles = []RoleInfo{
	{Name: "Student", Value: RoleStudent},
	{Name: "Teacher", Value: RoleTeacher},
	{Name: "Leader", Value: RoleLeader},
	{Name: "Manager", Value: RoleManager},
	{Name: "Admin", Value: RoleAdmin},
}

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) Valid() bool {
	return r >= RoleStudent && r <= RoleAdmin
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

type Member struct {
	ID           int       `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Role         Role      `json:"role"`
	ClassID      *int      `json:"class_id"`
	Language     string    `json:"language"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`  // UTC
	UpdatedAt    time.Time `json:"updated_at"`  // UTC
	LastActive   time.Time `json:"last_active"` // UTC
}

func (m *Member) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = hash
	return nil
}

func (m *Member) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(m.PasswordHash, []byte(pwd))
}

func (m *Member) SetActive(active bool) {
	m.IsActive = &active
}

func (m *Member) IsStudent() bool { return m.Role == RoleStudent }
func (m *Member) IsStaff() bool   { return m.Role >= RoleTeacher }
func (m *Member) IsAdmin() bool   { return m.Role >= RoleManager }

// InClass reports whether the member's primary class is id.
func (m *Member) InClass(id int) bool {
	return m.ClassID != nil && *m.ClassID == id
}

// NewMember contains information needed to register a new Member.
type NewMember struct {
	TelegramID int64  `json:"telegram_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"omitempty,email"`
	Role       Role   `json:"role" validate:"required,memberrole"`
	ClassID    *int   `json:"class_id"`
	Language   string `json:"language" validate:"omitempty,language"`
	Password   string `json:"password"`
}

func (nm *NewMember) Validate(ctx context.Context, validate core.Validate, svc *Service) error {
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)

	if err := validate.Struct(nm); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nm.TelegramID)
}

// UpdateMember defines what information may be provided to modify an existing Member.
type UpdateMember struct {
	Name     string `json:"name" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	ClassID  *int   `json:"class_id"`
	Language string `json:"language" validate:"omitempty,language"`
	IsActive *bool  `json:"is_active"`
	Password string `json:"password"`
}

func (um *UpdateMember) Validate(validate core.Validate, orig Member) error {
	if name := core.CleanString(um.Name); name != "" {
		um.Name = name
	} else {
		um.Name = orig.Name
	}
	if email := core.CleanString(um.Email, true /* lower */); email != "" {
		um.Email = email
	} else {
		um.Email = orig.Email
	}
	if um.Language == "" {
		um.Language = orig.Language
	}
	return validate.Struct(um)
}

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on Member.Name.
type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	ClassID     *int      `query:"class_id"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.ClassID == nil && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single member by one of its unique keys.
type GetFilter struct {
	ID         int
	TelegramID int64
}
