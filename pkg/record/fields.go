package record

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Well-known field names shared by all adapters.
const (
	FieldExternalID = "external_id"
	FieldTitle      = "title"
	FieldBody       = "body"
	FieldAuthor     = "author"
	FieldURL        = "url"
	FieldAdult      = "adult"
	FieldUps        = "ups"
	FieldDowns      = "downs"
	FieldCreated    = "created"
)

// Fields is the loosely typed bag an adapter produces for one item. Any field
// may be absent; accessors report presence and tolerate the value shapes that
// decoders commonly produce.
type Fields map[string]any

// Set stores v under key and returns the bag for chaining.
func (f Fields) Set(key string, v any) Fields {
	f[key] = v
	return f
}

// String returns the value for key as a string.
func (f Fields) String(key string) (string, bool) {
	switch v := f[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case nil:
		return "", false
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// Int returns the value for key as an int.
func (f Fields) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Bool returns the value for key as a bool.
func (f Fields) Bool(key string) (bool, bool) {
	switch v := f[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return false, false
}

// Time returns the value for key as a UTC time. Numbers are read as Unix
// seconds.
func (f Fields) Time(key string) (time.Time, bool) {
	switch v := f[key].(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	}
	return time.Time{}, false
}
