package idgen

import (
	"strings"
	"testing"
)

func TestGenerator_OrderCodeUnique(t *testing.T) {
	gen, err := New(1)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code := gen.OrderCode()
		if !strings.HasPrefix(code, OrderCodePrefix) {
			t.Fatalf("unexpected code format %q", code)
		}
		if strings.ToUpper(code) != code {
			t.Fatalf("code must be upper-case: %q", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestNew_RejectsInvalidNode(t *testing.T) {
	if _, err := New(4096); err == nil {
		t.Fatalf("expected error for node outside snowflake range")
	}
}

func TestGenerator_NewID(t *testing.T) {
	gen, err := New(0)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if gen.NewID() == gen.NewID() {
		t.Fatalf("expected distinct ids")
	}
}
