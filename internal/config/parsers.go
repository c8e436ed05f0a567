// Package config loads poolbench settings from defaults, a config file and flags.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// lookupSetting returns the first of the candidate keys present in settings.
// Viper lowercases keys, so each candidate is also tried in lower case.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

// asString never fails; non-strings are rendered with fmt.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// numeric reports the value of any Go integer or float kind. isInt is true
// for integer kinds.
func numeric(value interface{}) (f float64, isInt bool, ok bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true, true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), false, true
	}
	return 0, false, false
}

// trimmed returns the trimmed string form of value and whether it was a string.
func trimmed(value interface{}) (string, bool) {
	s, ok := value.(string)
	return strings.TrimSpace(s), ok
}

// asInt converts numbers and numeric strings to an int. Floats truncate.
func asInt(value interface{}) (int, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := trimmed(value); ok {
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	if f, _, ok := numeric(value); ok {
		return int(f), nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", value)
}

// asInt64 is asInt for seeds, which need the full 64 bits.
func asInt64(value interface{}) (int64, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := trimmed(value); ok {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	}
	if f, _, ok := numeric(value); ok {
		return int64(f), nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", value)
}

func asFloat64(value interface{}) (float64, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := trimmed(value); ok {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	if f, _, ok := numeric(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("unsupported float type %T", value)
}

func asBool(value interface{}) (bool, error) {
	if value == nil {
		return false, nil
	}
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if s, ok := trimmed(value); ok {
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	}
	return false, fmt.Errorf("unsupported boolean type %T", value)
}

// asDuration reads "5ms" style strings with time.ParseDuration. Bare numbers
// are seconds and may be fractional, so 0.005 is 5ms.
func asDuration(value interface{}) (time.Duration, error) {
	if value == nil {
		return 0, nil
	}
	if d, ok := value.(time.Duration); ok {
		return d, nil
	}
	if s, ok := trimmed(value); ok {
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	}
	f, isInt, ok := numeric(value)
	if !ok {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	if isInt {
		return time.Duration(f) * time.Second, nil
	}
	return time.Duration(f * float64(time.Second)), nil
}

// asStringSlice converts an interface value to a []string.
// Handles []string, []interface{}, and single string values.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// toStringKeyMap converts a map with various key types to map[string]interface{}.
// Keys are normalized to lowercase.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[strings.ToLower(strings.TrimSpace(str))] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}
