package uuid

import "testing"

func TestNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	a, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	b, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if a == b {
		t.Fatal("consecutive IDs must differ")
	}
	if len(a) != 36 {
		t.Fatalf("unexpected ID format: %q", a)
	}
}
