package types

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// jsonDataType picks the column type for JSON payloads per dialect.
func jsonDataType(db *gorm.DB) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func marshalColumn(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalColumn(src any, dst any, name string) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%s: unsupported Scan type %T", name, src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
