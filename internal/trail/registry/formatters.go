package registry

import (
	"fmt"
	"strconv"
	"time"
)

// Text renders strings and Stringers verbatim.
func Text() Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return "", fmt.Errorf("not a text value: %T", value)
		}
	}
}

// Number renders integers and floats without a trailing fraction when whole,
// so 3 and 3.0 both display as "3" and compare equal.
func Number() Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case int:
			return strconv.Itoa(v), nil
		case int32:
			return strconv.FormatInt(int64(v), 10), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return "", fmt.Errorf("not a numeric value: %T", value)
		}
	}
}

// Boolean renders booleans as Yes/No for display parity with the UI.
func Boolean() Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case bool:
			if v {
				return "Yes", nil
			}
			return "No", nil
		default:
			return "", fmt.Errorf("not a boolean value: %T", value)
		}
	}
}

// Date renders time values in the given layout, in UTC. Zero times format to
// the empty string, matching an unset date field.
func Date(layout string) Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case time.Time:
			if v.IsZero() {
				return "", nil
			}
			return v.UTC().Format(layout), nil
		case *time.Time:
			if v == nil || v.IsZero() {
				return "", nil
			}
			return v.UTC().Format(layout), nil
		default:
			return "", fmt.Errorf("not a time value: %T", value)
		}
	}
}

// Label renders enumerated codes through a code -> label table. Codes without
// a label display as stored.
func Label(labels map[string]string) Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case string:
			if v == "" {
				return "", nil
			}
			if label, ok := labels[v]; ok {
				return label, nil
			}
			return v, nil
		default:
			return "", fmt.Errorf("not an enumerated value: %T", value)
		}
	}
}

// Relation renders a relation-typed field as the related entity's
// human-readable label. Resolution failure is surfaced to the diff engine,
// which skips the attribute under the partial-capture policy.
func Relation(resolve func(id string) (string, error)) Formatter {
	return func(value any) (string, error) {
		switch v := value.(type) {
		case nil:
			return "", nil
		case string:
			if v == "" {
				return "", nil
			}
			label, err := resolve(v)
			if err != nil {
				return "", fmt.Errorf("resolve relation %q: %w", v, err)
			}
			return label, nil
		case fmt.Stringer:
			return Relation(resolve)(v.String())
		default:
			return "", fmt.Errorf("not a relation value: %T", value)
		}
	}
}
