// Package models defines the persisted entities: projects, pipeline jobs,
// and job history. All tables key on ULIDs so identifiers sort by creation
// time.
package models

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// ULID wraps ulid.ULID for use as a primary key column.
type ULID ulid.ULID

// NewULID generates a ULID for the current time.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// ParseULID parses the canonical 26-character form.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid ULID: %w", err)
	}
	return ULID(id), nil
}

func (u ULID) String() string {
	return ulid.ULID(u).String()
}

// IsZero reports whether u is the zero ULID.
func (u ULID) IsZero() bool {
	return u == ULID{}
}

// Value implements driver.Valuer. Zero ULIDs store as NULL.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner for string and []byte columns.
func (u *ULID) Scan(value any) error {
	var text string
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("unsupported type for ULID: %T", value)
	}

	if text == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.Parse(text)
	if err != nil {
		return fmt.Errorf("scanning ULID: %w", err)
	}
	*u = ULID(id)
	return nil
}

// MarshalJSON renders the ULID as a JSON string, or null when zero.
func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted ULID, an empty string, or null.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = ULID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid ULID JSON: %s", string(data))
	}
	s := string(data[1 : len(data)-1])
	if s == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("parsing ULID JSON: %w", err)
	}
	*u = ULID(id)
	return nil
}

// GormDataType sizes the column for the canonical encoding.
func (ULID) GormDataType() string {
	return "varchar(26)"
}

// BaseModel carries the fields shared by every table.
type BaseModel struct {
	ID        ULID           `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// BeforeCreate assigns an ID when the caller did not.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewULID()
	}
	return nil
}

// Time aliases time.Time for model fields.
type Time = time.Time

// Now returns the current time.
func Now() Time {
	return time.Now()
}
