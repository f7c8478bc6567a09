package migrate

import (
	"errors"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, Up)
		if err == nil {
			t.Fatalf("Run(%q) should return error", dsn)
		}
	}
}

func TestParseDirection(t *testing.T) {
	testCases := []struct {
		in   string
		want Direction
		err  bool
	}{
		{"up", Up, false},
		{"down", Down, false},
		{"", "", true},
		{"UP", "", true},
		{"sideways", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDirection(tc.in)
			if tc.err {
				if err == nil {
					t.Fatalf("ParseDirection(%q) should fail", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDirection: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseDirection(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	if err := Run("postgres://localhost/test", Direction("left")); err == nil {
		t.Fatal("Run with invalid direction should return error")
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://invalid-host:5432/test"} {
		err := Run(dsn, Up)
		if err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
		if errors.Is(err, ErrNoChange) {
			t.Errorf("Run should not surface ErrNoChange, got %v", err)
		}
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, err := Version(""); err == nil {
		t.Fatal("Version with empty DSN should return error")
	}
}
