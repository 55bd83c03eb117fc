package models

import (
	"errors"
	"strconv"
	"strings"
)

var ErrIncorrectField = errors.New("field must be name=value")

// FieldsFromArgs parses "name=value" arguments into entity data. Values that
// parse as numbers or booleans are stored as such; "null" clears a field.
func FieldsFromArgs(args []string) (map[string]any, error) {
	data := make(map[string]any, len(args))
	for _, item := range args {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, ErrIncorrectField
		}
		data[name] = parseValue(strings.TrimSpace(value))
	}
	return data, nil
}

func parseValue(s string) any {
	if s == "null" {
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
