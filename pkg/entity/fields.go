package entity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ref is a nested entity reference such as {"id": "0x..."}
type ref struct {
	ID string `json:"id"`
}

// refID flattens a nullable reference to its id.
func refID(r *ref) any {
	if r == nil {
		return nil
	}
	return r.ID
}

// requiredRef flattens a reference that must be present.
func requiredRef(r *ref, field string) (string, error) {
	if r == nil || r.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return r.ID, nil
}

func text(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var decimalPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// decimal accepts both the string form subgraphs use for BigInt/BigDecimal and plain JSON numbers.
type decimal string

func (d *decimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	if !decimalPattern.MatchString(s) {
		return fmt.Errorf("invalid decimal %q", s)
	}
	*d = decimal(s)
	return nil
}

func numeric(d *decimal) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

// numericOr returns d, or fallback when d is absent.
func numericOr(d *decimal, fallback string) string {
	if d == nil {
		return fallback
	}
	return string(*d)
}

// hexBytes decodes 0x-prefixed hex; nil stays nil.
func hexBytes(s *string, field string) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(*s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return b, nil
}
