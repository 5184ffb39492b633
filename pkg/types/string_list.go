package types

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringList is a text[] column on Postgres. sqlite stores the same array
// literal as text, so the Postgres encoding round-trips on both.
type StringList []string

func (StringList) GormDataType() string { return "string_list" }

func (StringList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return pq.StringArray(s).Value()
}

func (s *StringList) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	if raw == nil {
		raw = pq.StringArray{}
	}
	*s = StringList(raw)
	return nil
}
