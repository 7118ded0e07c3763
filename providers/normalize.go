package providers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Field returns the first non-empty value stored under any of keys.
// Each key is tried exactly first and then case-insensitively.
func Field(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := obj[key]; ok && !isEmpty(v) {
			return v
		}
		for k, v := range obj {
			if strings.EqualFold(k, key) && !isEmpty(v) {
				return v
			}
		}
	}
	return nil
}

// StringField returns Field as a string. Numbers and booleans are formatted;
// objects and lists yield "".
func StringField(obj map[string]any, keys ...string) string {
	return toString(Field(obj, keys...))
}

// ObjectField returns Field when it is a JSON object
func ObjectField(obj map[string]any, keys ...string) map[string]any {
	m, _ := Field(obj, keys...).(map[string]any)
	return m
}

// ListField returns Field when it is a JSON array
func ListField(obj map[string]any, keys ...string) []any {
	l, _ := Field(obj, keys...).([]any)
	return l
}

// IntField returns Field as an integer when it holds a number or numeric string
func IntField(obj map[string]any, keys ...string) (int, bool) {
	switch v := Field(obj, keys...).(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(n), true
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Records extracts contact objects from a raw payload. raw may be a single
// object, a list, or an object holding the list under one of wrapperKeys.
// Non-object list members are skipped.
func Records(raw any, wrapperKeys ...string) []map[string]any {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		return v
	case map[string]any:
		wrapped := false
		for _, key := range wrapperKeys {
			if inner, ok := lookupKey(v, key); ok {
				wrapped = true
				switch w := inner.(type) {
				case []any:
					items = w
				case map[string]any:
					items = []any{w}
				}
				break
			}
		}
		if !wrapped {
			items = []any{v}
		}
	default:
		return nil
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, obj)
		}
	}
	return records
}

// Unwrap returns the value a list endpoint wraps under key. A payload that
// is not an object, or lacks key, yields nil so the page comes back empty.
func Unwrap(payload any, key string) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	inner, _ := lookupKey(obj, key)
	return inner
}

func lookupKey(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// FillName sets Name from the first and last name when it is empty
func FillName(c *Contact) {
	if c.Name != "" {
		return
	}
	c.Name = strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// NormalizeRecords applies mapFn to every record in raw and fills missing names
func NormalizeRecords(raw any, mapFn func(map[string]any) Contact, wrapperKeys ...string) []Contact {
	records := Records(raw, wrapperKeys...)
	contacts := make([]Contact, 0, len(records))
	for _, record := range records {
		c := mapFn(record)
		FillName(&c)
		contacts = append(contacts, c)
	}
	return contacts
}
