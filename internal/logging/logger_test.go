package logging

import "testing"

func TestNew(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		if err != nil {
			t.Fatalf("New(%v) error = %v", dev, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", dev)
		}
	}
}
