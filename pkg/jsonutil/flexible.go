package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleID is an entity identifier that tolerates both JSON numbers and
// numeric strings on the wire. Upstream APIs (and query parameters) are
// inconsistent about this, and a silent type mismatch makes every id
// comparison fail, so ids are normalized to int64 at decode time.
type FlexibleID struct {
	Value int64
	Valid bool
}

// ID returns a valid FlexibleID with the given value.
func ID(v int64) FlexibleID {
	return FlexibleID{Value: v, Valid: true}
}

// UnmarshalJSON accepts a number, a numeric string, or null.
// Anything else is a decode error.
func (f *FlexibleID) UnmarshalJSON(raw []byte) error {
	s := string(raw)
	if s == "null" {
		*f = FlexibleID{}
		return nil
	}

	var num int64
	if err := json.Unmarshal(raw, &num); err == nil {
		*f = FlexibleID{Value: num, Valid: true}
		return nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.TrimSpace(str)
		if str == "" {
			*f = FlexibleID{}
			return nil
		}
		num, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not numeric", str)
		}
		*f = FlexibleID{Value: num, Valid: true}
		return nil
	}

	return fmt.Errorf("id %s is neither a number nor a numeric string", s)
}

// MarshalJSON emits the id as a JSON number, or null when unset.
func (f FlexibleID) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}
