package tagconf

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// String retrieves a string value at the path, converting common scalar
// types. A nil value reads as the empty string.
func (c *Config) String(path string) (string, error) {
	val, found := c.Get(path)
	if !found {
		return "", fmt.Errorf("no parameter at path: %s", path)
	}
	if val == nil {
		return "", nil
	}
	switch v := val.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(val).Int(), 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(val).Uint(), 10), nil
	case float32, float64:
		return strconv.FormatFloat(reflect.ValueOf(val).Float(), 'f', -1, 64), nil
	}
	return "", fmt.Errorf("cannot convert type %T to string for path %s", val, path)
}

// Int64 retrieves an integer value at the path, converting numeric
// types, parsable strings and booleans.
func (c *Config) Int64(path string) (int64, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("no parameter at path: %s", path)
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > uint64(^uint64(0)>>1) {
			return 0, fmt.Errorf("unsigned value %d overflows int64 for path %s", u, path)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return int64(v.Float()), nil
	case reflect.String:
		s := v.String()
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, fmt.Errorf("cannot convert string %q to int64 for path %s", s, path)
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to int64 for path %s", val, path)
}

// Float64 retrieves a float value at the path, converting numeric types
// and parsable strings.
func (c *Config) Float64(path string) (float64, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("no parameter at path: %s", path)
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	case reflect.String:
		s := v.String()
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return 0, fmt.Errorf("cannot convert string %q to float64 for path %s", s, path)
	}
	return 0, fmt.Errorf("cannot convert type %T to float64 for path %s", val, path)
}

// Bool retrieves a boolean value at the path. Numbers read as zero or
// non-zero; strings are parsed with strconv.ParseBool.
func (c *Config) Bool(path string) (bool, error) {
	val, found := c.Get(path)
	if !found {
		return false, fmt.Errorf("no parameter at path: %s", path)
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(v.String())
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to bool for path %s", v.String(), path)
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0, nil
	}
	return false, fmt.Errorf("cannot convert type %T to bool for path %s", val, path)
}

// Duration retrieves a time.Duration value at the path. Strings are
// parsed with time.ParseDuration, numbers read as nanoseconds.
func (c *Config) Duration(path string) (time.Duration, error) {
	val, found := c.Get(path)
	if !found {
		return 0, fmt.Errorf("no parameter at path: %s", path)
	}
	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as duration for path %s: %w", v, path, err)
		}
		return d, nil
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v), nil
	}
	return 0, fmt.Errorf("cannot convert type %T to duration for path %s", val, path)
}

// StringSlice retrieves a list of strings at the path. Every element of
// a generic list is converted with the String rules.
func (c *Config) StringSlice(path string) ([]string, error) {
	val, found := c.Get(path)
	if !found {
		return nil, fmt.Errorf("no parameter at path: %s", path)
	}
	switch v := val.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, element := range v {
			switch e := element.(type) {
			case string:
				out[i] = e
			case bool:
				out[i] = strconv.FormatBool(e)
			case int:
				out[i] = strconv.Itoa(e)
			case int64:
				out[i] = strconv.FormatInt(e, 10)
			case float64:
				out[i] = strconv.FormatFloat(e, 'f', -1, 64)
			default:
				return nil, fmt.Errorf("cannot convert element %d (%T) to string for path %s",
					i, element, path)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert type %T to []string for path %s", val, path)
}
