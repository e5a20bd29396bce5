// Package validate implements the short-circuiting validation chain (spec
// C5), ported from app/services/storage/validators.py.
package validate

import (
	"fmt"
	"strings"
)

// Metadata is the subset of upload metadata validators may inspect.
type Metadata struct {
	MIMEType string
}

// Validator checks one property of an upload. ok is false iff the upload
// should be rejected; message is operator-facing detail (the HTTP layer
// decides how much of it to surface to the client).
type Validator interface {
	Validate(content []byte, meta Metadata) (ok bool, message string)
}

// Chain runs an ordered list of Validators, stopping at the first failure.
type Chain struct {
	validators []Validator
}

// NewChain builds a Chain from an ordered list of validators.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// Add appends a validator to the end of the chain.
func (c *Chain) Add(v Validator) {
	c.validators = append(c.validators, v)
}

// Validate runs every validator in order, returning the first failure.
func (c *Chain) Validate(content []byte, meta Metadata) (ok bool, message string) {
	for _, v := range c.validators {
		ok, message := v.Validate(content, meta)
		if !ok {
			return false, message
		}
	}
	return true, ""
}

// SizeValidator rejects content larger than MaxBytes.
type SizeValidator struct {
	MaxBytes int64
}

// Validate implements Validator.
func (v SizeValidator) Validate(content []byte, _ Metadata) (bool, string) {
	size := int64(len(content))
	if size > v.MaxBytes {
		return false, fmt.Sprintf("file too large: %d bytes (max %d bytes)", size, v.MaxBytes)
	}
	return true, ""
}

// MIMEAllowlistValidator rejects content whose sniffed MIME type is not on
// Allowed. An empty Allowed list means permit-all. Entries may end in "*"
// to match an entire category, e.g. "image/*".
type MIMEAllowlistValidator struct {
	Allowed []string
}

// Validate implements Validator.
func (v MIMEAllowlistValidator) Validate(_ []byte, meta Metadata) (bool, string) {
	if len(v.Allowed) == 0 {
		return true, ""
	}
	if meta.MIMEType == "" {
		return false, "MIME type not declared"
	}
	for _, allowed := range v.Allowed {
		if allowed == meta.MIMEType {
			return true, ""
		}
		if category, ok := strings.CutSuffix(allowed, "*"); ok {
			if strings.HasPrefix(meta.MIMEType, category) {
				return true, ""
			}
		}
	}
	return false, fmt.Sprintf("file type not supported: %s", meta.MIMEType)
}
