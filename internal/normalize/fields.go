package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// object is a decoded JSON object that remembers where it sits in the
// payload so mismatches can name the offending field.
type object struct {
	m    map[string]interface{}
	path string
}

func mismatch(path, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", path, fmt.Sprintf(format, args...), domain.ErrSchemaMismatch)
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func asObject(v interface{}, path string) (object, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		if path == "" {
			path = "$"
		}
		return object{}, mismatch(path, "is %T, want object", v)
	}
	return object{m: m, path: path}, nil
}

func (o object) field(key string) (interface{}, error) {
	v, ok := o.m[key]
	if !ok || v == nil {
		return nil, mismatch(join(o.path, key), "missing required field")
	}
	return v, nil
}

func (o object) object(key string) (object, error) {
	v, err := o.field(key)
	if err != nil {
		return object{}, err
	}
	return asObject(v, join(o.path, key))
}

func (o object) objects(key string) ([]object, error) {
	v, err := o.field(key)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, mismatch(join(o.path, key), "is %T, want array", v)
	}
	return objectsOf(items, join(o.path, key))
}

func objectsOf(items []interface{}, path string) ([]object, error) {
	objs := make([]object, 0, len(items))
	for i, item := range items {
		obj, err := asObject(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func (o object) str(key string) (string, error) {
	v, err := o.field(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(join(o.path, key), "is %T, want string", v)
	}
	return s, nil
}

// optionalStr reports whether key is present; a present non-string is a mismatch.
func (o object) optionalStr(key string) (string, bool, error) {
	v, ok := o.m[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, mismatch(join(o.path, key), "is %T, want string", v)
	}
	return s, true, nil
}

func (o object) number(key string) (decimal.Decimal, error) {
	v, err := o.field(key)
	if err != nil {
		return decimal.Zero, err
	}
	f, ok := v.(float64)
	if !ok {
		return decimal.Zero, mismatch(join(o.path, key), "is %T, want number", v)
	}
	return decimal.NewFromFloat(f), nil
}

func (o object) boolean(key string) (bool, error) {
	v, err := o.field(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch(join(o.path, key), "is %T, want boolean", v)
	}
	return b, nil
}

// numericStr reads an amount sent as a string, e.g. "1,234.56".
func (o object) numericStr(key string) (decimal.Decimal, error) {
	s, err := o.str(key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return decimal.Zero, mismatch(join(o.path, key), "invalid amount %q", s)
	}
	return d, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// date reads a date string; values without an offset are taken as UTC.
func (o object) date(key string) (time.Time, error) {
	s, err := o.str(key)
	if err != nil {
		return time.Time{}, err
	}
	return parseDate(join(o.path, key), s)
}

func parseDate(path, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, mismatch(path, "invalid date %q", s)
}

// epochMillis reads a date sent as milliseconds since the Unix epoch.
func (o object) epochMillis(key string) (time.Time, error) {
	v, err := o.field(key)
	if err != nil {
		return time.Time{}, err
	}
	f, ok := v.(float64)
	if !ok {
		return time.Time{}, mismatch(join(o.path, key), "is %T, want number", v)
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

// nonEmpty is the truthiness test used by the pre-filters.
func (o object) nonEmpty(key string) bool {
	switch v := o.m[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return true
	}
}
