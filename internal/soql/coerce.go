package soql

import (
	"strings"

	"github.com/lunahq/bulkops-api/internal/models"
)

// NoneSentinel is the UI-level marker meaning "clear this field to null".
// It is distinct from the empty string, which the store treats as a real
// value and which mutation requests reject.
const NoneSentinel = "--None--"

// IsNone reports whether a raw value means "set to null".
func IsNone(value string) bool {
	return value == "" || strings.EqualFold(strings.TrimSpace(value), NoneSentinel)
}

// ParseBool converts permissive string forms into a boolean. The second
// return reports whether the input was recognised.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "on":
		return true, true
	case "false", "0", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// CoerceForFieldType converts a raw string value into the typed value sent
// to the store. Coercion rules live here and nowhere else; the filter
// compiler and the batch executor both call this.
//
// Sentinel and empty values become nil (clear to null). Boolean fields get a
// real boolean from permissive string forms; unrecognised forms become
// false. Everything else passes through unchanged.
func CoerceForFieldType(value string, d *models.FieldDescriptor) interface{} {
	if IsNone(value) {
		return nil
	}
	if d != nil && d.Type == models.FieldTypeBoolean {
		b, _ := ParseBool(value)
		return b
	}
	return value
}
