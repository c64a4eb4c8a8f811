package services

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Params holds decoded service call parameters.
type Params map[string]any

func (p Params) has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns a string parameter, or def when absent.
func (p Params) String(key, def string) (string, error) {
	if !p.has(key) {
		return def, nil
	}
	s, ok := p[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return strings.TrimSpace(s), nil
}

// OneOf returns a string parameter that must be one of allowed.
func (p Params) OneOf(key, def string, allowed ...string) (string, error) {
	s, err := p.String(key, def)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, s) {
		return "", fmt.Errorf("%w: %s must be one of %s", ErrInvalidParams, key, strings.Join(allowed, ", "))
	}
	return s, nil
}

// Bool returns a boolean parameter, or def when absent.
// The strings "true"/"false"/"on"/"off" are accepted.
func (p Params) Bool(key string, def bool) (bool, error) {
	if !p.has(key) {
		return def, nil
	}
	switch v := p[key].(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParams, key)
}

// RequireBool returns a boolean parameter that must be present.
func (p Params) RequireBool(key string) (bool, error) {
	if !p.has(key) {
		return false, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	return p.Bool(key, false)
}

// Float returns a numeric parameter within [lo, hi].
func (p Params) Float(key string, lo, hi float64) (float64, bool, error) {
	if !p.has(key) {
		return 0, false, nil
	}
	f, err := toFloat(p[key])
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
	}
	if math.IsNaN(f) || f < lo || f > hi {
		return 0, true, fmt.Errorf("%w: %s must be between %v and %v", ErrInvalidParams, key, lo, hi)
	}
	return f, true, nil
}

// RequireInt returns an integral parameter within [lo, hi] that must be present.
func (p Params) RequireInt(key string, lo, hi int) (int, error) {
	f, ok, err := p.Float(key, float64(lo), float64(hi))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidParams, key)
	}
	return int(f), nil
}

// Int returns an integral parameter within [lo, hi], or def when absent.
func (p Params) Int(key string, def, lo, hi int) (int, error) {
	if !p.has(key) {
		return def, nil
	}
	return p.RequireInt(key, lo, hi)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
