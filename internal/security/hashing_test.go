package security

import (
	"reflect"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Secret123!" {
		t.Fatal("Hash returned empty or plaintext")
	}
	if !h.Verify("Secret123!", hash) {
		t.Fatal("Verify should accept the original password")
	}
	if h.Verify("wrong", hash) {
		t.Fatal("Verify with wrong password should fail")
	}
}

func TestHasher_SaltedDigests(t *testing.T) {
	h := NewHasher(4)
	a, _ := h.Hash("Secret123!")
	b, _ := h.Hash("Secret123!")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHasher_VerifyMalformedDigest(t *testing.T) {
	h := NewHasher(4)
	for _, digest := range []string{"", "not-a-bcrypt-hash", "$2a$04$short"} {
		if h.Verify("Secret123!", digest) {
			t.Errorf("Verify(%q) should be false", digest)
		}
	}
}

func TestHasher_VerifyDummy(t *testing.T) {
	h := NewHasher(4)
	h.VerifyDummy("anything")
	if h.dummy == "" {
		t.Fatal("dummy digest should be initialised")
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost != 12 {
		t.Errorf("zero cost should default to 12, got %d", h.Cost)
	}
	if h := NewHasher(2); h.Cost != 4 {
		t.Errorf("low cost should clamp to 4, got %d", h.Cost)
	}
	if h := NewHasher(40); h.Cost != 31 {
		t.Errorf("high cost should clamp to 31, got %d", h.Cost)
	}
}

func TestValidateStrength(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		want     []string
	}{
		{"valid", "Str0ng!Pass", nil},
		{"unicode symbol", "Pässw0rd€", nil},
		{"too short", "Ab1!", []string{ViolationTooShort}},
		{"no upper", "weak1234!", []string{ViolationNoUpper}},
		{"no lower", "WEAK1234!", []string{ViolationNoLower}},
		{"no digit", "WeakPass!", []string{ViolationNoDigit}},
		{"no special", "WeakPass1", []string{ViolationNoSpecial}},
		{"everything", "", []string{ViolationTooShort, ViolationNoUpper, ViolationNoLower, ViolationNoDigit, ViolationNoSpecial}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateStrength(tc.password)
			if got.Valid != (len(tc.want) == 0) {
				t.Errorf("Valid = %v, want %v", got.Valid, len(tc.want) == 0)
			}
			if !reflect.DeepEqual(got.Violations, tc.want) {
				t.Errorf("Violations = %v, want %v", got.Violations, tc.want)
			}
		})
	}
}
