package attendance

import (
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound         = errors.New("attendance record not found")
	ErrNoteTooLong      = errors.New("absence note is too long")
	ErrNoteOnPresent    = errors.New("a note may only be attached to an absence")
	ErrNoChanges        = errors.New("no changes to confirm")
	ErrWorkspaceExpired = errors.New("pending edits expired")
	ErrTokenExpired     = errors.New("confirmation expired, please review again")
	ErrTokenMismatch    = errors.New("confirmation does not belong to this member")
	ErrTokenAlreadyUsed = errors.New("confirmation already applied")
	ErrEmptyRoster      = errors.New("class roster is empty")
)

// Record is one member's attendance for one class day. A member has at most
// one record per (class, date); marking again overwrites in place.
type Record struct {
	ID        int       `json:"id"`
	MemberID  int       `json:"member_id"`
	ClassID   *int      `json:"class_id"`
	Date      time.Time `json:"date"` // UTC midnight, class day
	Present   bool      `json:"present"`
	Note      string    `json:"note,omitempty"` // absence reason, empty means none
	MarkedBy  int       `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewRecord contains information needed to mark one member's attendance.
type NewRecord struct {
	MemberID int       `json:"member_id" validate:"required"`
	ClassID  *int      `json:"class_id"`
	Date     time.Time `json:"date" validate:"required"`
	Present  bool      `json:"present"`
	Note     string    `json:"note"`
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	MemberID int       `query:"member_id"`
	ClassID  *int      `query:"class_id"`
	Date     time.Time `query:"date"`
	DateFrom time.Time `query:"date_from"`
	DateTo   time.Time `query:"date_to"`
	Present  *bool     `query:"present"`
	WithNote *bool     `query:"with_note"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.MemberID == 0 && qf.ClassID == nil && qf.Date.IsZero() &&
		qf.DateFrom.IsZero() && qf.DateTo.IsZero() && qf.Present == nil && qf.WithNote == nil
}
