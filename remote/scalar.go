package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Scalar is a JSON leaf value that remembers whether it was present.
// Strings and numbers keep their textual form, so numeric ids and
// string ids read the same. Objects and arrays keep their raw JSON.
type Scalar struct {
	text  string
	valid bool
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = Scalar{}
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar{text: str, valid: true}
		return nil
	}
	*s = Scalar{text: string(b), valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler; numbers are written back as strings
func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.text)
}

// Valid reports whether the value was present and not null
func (s Scalar) Valid() bool { return s.valid }

// String returns the textual form, empty for null or absent
func (s Scalar) String() string { return s.text }

// Float parses the value as a number
func (s Scalar) Float() (float64, bool) {
	if !s.valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(s.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Text builds a present scalar, for tests and fixtures
func Text(v string) Scalar { return Scalar{text: v, valid: true} }

// Number builds a present numeric scalar
func Number(v float64) Scalar {
	return Scalar{text: strconv.FormatFloat(v, 'f', -1, 64), valid: true}
}

// Null is the absent value
var Null = Scalar{}
