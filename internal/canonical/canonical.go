// Package canonical serializes structured records to RFC 8785 (JSON
// Canonicalization Scheme) bytes. Two records with identical logical
// content produce identical bytes regardless of field order, which is
// what makes event digests comparable across processes and languages.
package canonical

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// EncodingError reports a value that cannot be represented in the
// canonical scheme (non-finite numbers, channels, cycles, ...).
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}

// Marshal returns the RFC 8785 canonical JSON encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}

	return out, nil
}
