// Package validation checks tool arguments before they reach the service
// layer, so callers get field-level messages instead of deep errors.
package validation

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/samsavage/railgun-mcp/internal/keys"
)

// MaxRequestSize caps HTTP transport request bodies (1MB).
const MaxRequestSize = 1 << 20

// MaxStringLength caps free-text arguments such as memos and descriptions.
const MaxStringLength = 1000

var (
	ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	amountRegex     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	mnemonicWord    = regexp.MustCompile(`^[a-z]+$`)
)

// LimitBody caps request bodies for the HTTP transports.
func LimitBody(next http.Handler, maxSize int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
		next.ServeHTTP(w, r)
	})
}

// IsValidEthAddress checks for a 0x-prefixed 20-byte hex address.
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// SanitizeString trims, truncates and strips null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError is a problem with one argument.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Field + " " + v.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when there are no errors, so callers can write
// `if err := Validate(...).Err(); err != nil`.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate runs every check and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks an optional 0x address.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidEthAddress(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be a valid 0x address"}
		}
		return nil
	}
}

// ValidRailgunAddress checks an optional 0zk address.
func ValidRailgunAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !keys.IsRailgunAddress(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be a valid 0zk address"}
		}
		return nil
	}
}

// ValidRecipient accepts either a 0x or a 0zk address.
func ValidRecipient(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.TrimSpace(value)
		if v == "" || IsValidEthAddress(v) || keys.IsRailgunAddress(v) {
			return nil
		}
		return &ValidationError{Field: field, Message: "must be a 0x or 0zk address"}
	}
}

// ValidAmount checks an optional positive decimal such as "1.5".
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !amountRegex.MatchString(value) {
			return &ValidationError{Field: field, Message: "must be a decimal number such as 1.5"}
		}
		if strings.Trim(value, "0.") == "" {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// ValidHex checks optional 0x-prefixed hex data.
func ValidHex(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if _, err := hexutil.Decode(value); err != nil {
			return &ValidationError{Field: field, Message: "must be 0x-prefixed hex"}
		}
		return nil
	}
}

// ValidSecret checks that an import secret looks like a mnemonic or a
// 32-byte hex private key. The full check happens at derivation.
func ValidSecret(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.TrimSpace(value)
		if v == "" {
			return nil
		}
		hex := strings.TrimPrefix(v, "0x")
		if len(hex) == 64 {
			if _, err := hexutil.Decode("0x" + hex); err == nil {
				return nil
			}
		}
		words := strings.Fields(strings.ToLower(v))
		switch len(words) {
		case 12, 15, 18, 21, 24:
			for _, w := range words {
				if !mnemonicWord.MatchString(w) {
					return &ValidationError{Field: field, Message: "must be a mnemonic or 64-hex private key"}
				}
			}
			return nil
		}
		return &ValidationError{Field: field, Message: "must be a mnemonic or 64-hex private key"}
	}
}

// OneOf checks an optional value against a fixed set, case-insensitively.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(value), a) {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// Range checks that an integer argument lies within [lo, hi].
func Range(field string, value, lo, hi int) func() *ValidationError {
	return func() *ValidationError {
		if value < lo || value > hi {
			return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", lo, hi)}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
