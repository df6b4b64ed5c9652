package validation

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samsavage/railgun-mcp/internal/keys"
)

const hardhatMnemonic = "test test test test test test test test test test test junk"

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},

		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsValidEthAddress(tc.addr); got != tc.valid {
			t.Errorf("IsValidEthAddress(%q) = %v, want %v", tc.addr, got, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		if got := SanitizeString(tc.input, tc.maxLen); got != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("wallet_id", "wal_1"),
		ValidAddress("recipient", "0x1234567890123456789012345678901234567890"),
	)
	if err := errs.Err(); err != nil {
		t.Errorf("expected no errors, got %v", err)
	}

	errs = Validate(
		Required("wallet_id", " "),
		ValidAddress("recipient", "invalid"),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	want := "wallet_id is required; recipient must be a valid 0x address"
	if errs.Error() != want {
		t.Errorf("Error() = %q, want %q", errs.Error(), want)
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1.00", true},
		{"0.50", true},
		{"100", true},
		{"0.000001", true},
		{"", true},

		{".50", false},
		{"1.", false},
		{"abc", false},
		{"-1.00", false},
		{"1.2.3", false},
		{"0.000", false},
		{"0", false},
	}

	for _, tc := range tests {
		err := ValidAmount("amount", tc.value)()
		if valid := err == nil; valid != tc.valid {
			t.Errorf("ValidAmount(%q) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}

func TestRailgunAddresses(t *testing.T) {
	ks, err := keys.Derive(hardhatMnemonic, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	zk, err := ks.RailgunAddress(keys.EVMChain(1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := ValidRailgunAddress("to", zk)(); err != nil {
		t.Errorf("valid 0zk rejected: %v", err.Message)
	}
	if err := ValidRailgunAddress("to", "0x1234567890123456789012345678901234567890")(); err == nil {
		t.Error("0x address accepted as 0zk")
	}
	if err := ValidRecipient("to", zk)(); err != nil {
		t.Error("0zk recipient rejected")
	}
	if err := ValidRecipient("to", "0x1234567890123456789012345678901234567890")(); err != nil {
		t.Error("0x recipient rejected")
	}
	if err := ValidRecipient("to", "vitalik.eth")(); err == nil {
		t.Error("ENS name accepted")
	}
}

func TestValidSecret(t *testing.T) {
	tests := []struct {
		secret string
		valid  bool
	}{
		{hardhatMnemonic, true},
		{"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", true},
		{"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", true},
		{"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff", false},
		{"one two three", false},
		{"test test test test test test test test test test test 123", false},
	}
	for _, tc := range tests {
		err := ValidSecret("secret", tc.secret)()
		if valid := err == nil; valid != tc.valid {
			t.Errorf("ValidSecret(%q) valid=%v, want %v", tc.secret, valid, tc.valid)
		}
	}
}

func TestValidHex(t *testing.T) {
	if err := ValidHex("data", "0xdeadbeef")(); err != nil {
		t.Error("valid hex rejected")
	}
	if err := ValidHex("data", "deadbeef")(); err == nil {
		t.Error("hex without 0x accepted")
	}
	if err := ValidHex("data", "0xzz")(); err == nil {
		t.Error("non-hex accepted")
	}
}

func TestOneOfAndRange(t *testing.T) {
	if err := OneOf("dex", "Uniswap", "0x", "uniswap", "sushiswap")(); err != nil {
		t.Error("case-insensitive match rejected")
	}
	err := OneOf("dex", "curve", "0x", "uniswap")()
	if err == nil || err.Message != "must be one of 0x, uniswap" {
		t.Errorf("unexpected result %+v", err)
	}

	if err := Range("count", 10, 1, 10)(); err != nil {
		t.Error("upper bound rejected")
	}
	if err := Range("count", 0, 1, 10)(); err == nil || err.Message != "must be between 1 and 10" {
		t.Errorf("unexpected result %+v", err)
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("memo", "hello", 5)(); err != nil {
		t.Error("expected no error for string at limit")
	}
	if err := MaxLength("memo", "hello world", 5)(); err == nil {
		t.Error("expected error for string over limit")
	}
}

func TestLimitBody(t *testing.T) {
	h := LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), 8)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("tiny")))
	if rec.Code != http.StatusOK {
		t.Errorf("small body: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("this body is too long")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body: status %d", rec.Code)
	}
}
