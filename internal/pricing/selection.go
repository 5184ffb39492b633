package pricing

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Selection picks one attribute value for a line. Every selected variant
// moves by the line quantity; Quantity may only restate it (zero or equal).
type Selection struct {
	AttributeValueID uuid.UUID `json:"attribute_value_id" validate:"required"`
	Quantity         int       `json:"quantity,omitempty"`
}

// SelectionKey encodes a selection set canonically so that two requests
// naming the same values in any order produce the same key.
func SelectionKey(selections []Selection) string {
	if len(selections) == 0 {
		return ""
	}
	parts := make([]string, 0, len(selections))
	for _, sel := range selections {
		parts = append(parts, sel.AttributeValueID.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// ParseSelectionKey is the inverse of SelectionKey.
func ParseSelectionKey(key string) ([]Selection, error) {
	if key == "" {
		return nil, nil
	}
	parts := strings.Split(key, ",")
	out := make([]Selection, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, Selection{AttributeValueID: id})
	}
	return out, nil
}
