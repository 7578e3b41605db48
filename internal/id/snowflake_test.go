package id

import "testing"

func TestNewIsMonotonic(t *testing.T) {
	if err := Init(1); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("id %d not greater than previous %d", next, prev)
		}
		prev = next
	}
}
