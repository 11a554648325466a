// Package validate checks untyped input against the journal's data shapes.
//
// Every validator evaluates all of its rules before returning, so a single
// call reports every offending field. Errors are keyed by dotted field path
// ("entries.3.date", "privacy.autoLockTimeout"). On success the result
// carries the coerced value: missing optional groups are defaulted and
// unknown keys are dropped.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/ritual/internal/model"
)

// RootPath is the error key used when the input itself has the wrong shape.
const RootPath = "root"

// Errors maps a dotted field path to a human-readable message.
type Errors = model.FieldErrors

// Clock reports the current time.
type Clock func() time.Time

// Result is the outcome of a validation. Data is set only when IsValid.
type Result[T any] struct {
	IsValid bool   `json:"isValid"`
	Data    *T     `json:"data,omitempty"`
	Errors  Errors `json:"errors,omitempty"`
}

// Err returns a *model.ValidationError for an invalid result, nil otherwise.
func (r Result[T]) Err() error {
	if r.IsValid {
		return nil
	}
	return &model.ValidationError{Fields: r.Errors}
}

// Validator holds the clock used by the "not in the future" rules.
type Validator struct {
	now Clock
}

func New(now Clock) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

var std = New(time.Now)

func Entry(v any) Result[model.Entry] { return std.Entry(v) }
func Settings(v any) Result[model.Settings] { return std.Settings(v) }
func Profile(v any) Result[model.UserProfile] { return std.Profile(v) }
func ImportBundle(v any) Result[model.StoredRecord] { return std.ImportBundle(v) }

func finish[T any](f *fields, data T) Result[T] {
	if len(f.errs) > 0 {
		return Result[T]{IsValid: false, Errors: f.errs}
	}
	return Result[T]{IsValid: true, Data: &data}
}

func invalidRoot[T any](msg string) Result[T] {
	return Result[T]{IsValid: false, Errors: model.FieldErrors{RootPath: msg}}
}

// object normalizes v into a generic JSON object.
func object(v any) (map[string]any, bool) {
	tree, err := normalize(v)
	if err != nil {
		return nil, false
	}
	m, ok := tree.(map[string]any)
	return m, ok
}

// normalize converts any JSON-shaped input into the generic tree produced by
// encoding/json, with numbers kept as json.Number.
func normalize(v any) (any, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = x
	case json.RawMessage:
		data = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal input: %w", err)
		}
		data = b
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return out, nil
}

type fields struct {
	errs model.FieldErrors
}

func newFields() *fields {
	return &fields{errs: model.FieldErrors{}}
}

// add records msg for path. The first message for a path wins.
func (f *fields) add(path, msg string) {
	if _, ok := f.errs[path]; !ok {
		f.errs[path] = msg
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func index(prefix string, i int) string {
	return join(prefix, strconv.Itoa(i))
}

// lookup returns the value at key, treating explicit nulls as absent.
func lookup(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isInteger(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 strings, bare dates, and epoch milliseconds.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case json.Number:
		ms, err := t.Int64()
		if err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return time.Time{}, false
}

// requiredTime validates a mandatory date field.
func requiredTime(f *fields, m map[string]any, key, path, label string) time.Time {
	raw, ok := lookup(m, key)
	if !ok {
		f.add(path, label+" is required")
		return time.Time{}
	}
	ts, ok := parseTime(raw)
	if !ok {
		f.add(path, label+" must be a valid date")
		return time.Time{}
	}
	if ts.IsZero() {
		f.add(path, label+" is required")
	}
	return ts
}

// optionalTime validates a date field that may be absent.
func optionalTime(f *fields, m map[string]any, key, path, label string) *time.Time {
	raw, ok := lookup(m, key)
	if !ok {
		return nil
	}
	ts, ok := parseTime(raw)
	if !ok {
		f.add(path, label+" must be a valid date")
		return nil
	}
	if ts.IsZero() {
		return nil
	}
	return &ts
}

func optionalBool(f *fields, m map[string]any, key, path string, dst *bool) {
	raw, ok := lookup(m, key)
	if !ok {
		return
	}
	b, isBool := raw.(bool)
	if !isBool {
		f.add(path, "Must be true or false")
		return
	}
	*dst = b
}

func optionalString(f *fields, m map[string]any, key, path string) (string, bool) {
	raw, ok := lookup(m, key)
	if !ok {
		return "", false
	}
	s, isStr := raw.(string)
	if !isStr {
		f.add(path, "Must be a string")
		return "", false
	}
	return s, true
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
