// Package flatten converts the arbitrarily nested key/value payload that
// arrives with a notification into a single-level mapping suitable for
// storage and querying.
//
// Nested mappings are joined with "." ({"a": {"b": 1}} becomes {"a.b": 1}).
// That convention is part of the stored format and must not change without
// a migration of existing rows.
package flatten

import (
	"fmt"

	"github.com/rs/zerolog"
)

// valueKind is the closed set of shapes a payload value can take. Every
// value is classified exactly once; anything outside the set is
// kindUnsupported and handled explicitly rather than falling through.
type valueKind int

const (
	kindScalar valueKind = iota
	kindSequence
	kindMapping
	kindUnsupported
)

// Flattener normalizes nested payloads. It is stateless and safe for
// concurrent use.
type Flattener struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Flattener {
	return &Flattener{
		logger: logger.With().Str("component", "flatten").Logger(),
	}
}

// Flatten produces a flat mapping from dot-joined key paths to
// JSON-serializable values. A field whose value cannot be converted is
// logged and omitted; one bad field never discards the rest of the
// payload. The result is deterministic for a given input.
func (f *Flattener) Flatten(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	f.walk("", payload, out)
	return out
}

func (f *Flattener) walk(prefix string, m map[string]any, out map[string]any) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch classify(value) {
		case kindScalar:
			out[path] = value
		case kindSequence:
			out[path] = flattenSequence(value)
		case kindMapping:
			f.walk(path, value.(map[string]any), out)
		case kindUnsupported:
			f.logger.Debug().
				Str("key", path).
				Str("type", fmt.Sprintf("%T", value)).
				Msg("dropping unconvertible payload field")
		}
	}
}

func classify(v any) valueKind {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return kindScalar
	case map[string]any:
		return kindMapping
	case []any, []string, []int, []int64, []float64, []bool:
		return kindSequence
	default:
		return kindUnsupported
	}
}

// flattenSequence keeps homogeneous scalar arrays as-is and renders
// anything else element by element as strings.
func flattenSequence(v any) any {
	switch seq := v.(type) {
	case []string, []int, []int64, []float64, []bool:
		return seq
	case []any:
		if homogeneousScalars(seq) {
			return seq
		}
		rendered := make([]string, len(seq))
		for i, elem := range seq {
			rendered[i] = fmt.Sprint(elem)
		}
		return rendered
	default:
		return v
	}
}

// homogeneousScalars reports whether every element is a scalar of the same
// broad type (textual, numeric, or boolean).
func homogeneousScalars(seq []any) bool {
	first := ""
	for i, elem := range seq {
		k := scalarClass(elem)
		if k == "" {
			return false
		}
		if i == 0 {
			first = k
			continue
		}
		if k != first {
			return false
		}
	}
	return true
}

func scalarClass(v any) string {
	switch v.(type) {
	case string:
		return "text"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return "number"
	default:
		return ""
	}
}
