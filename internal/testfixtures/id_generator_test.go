package testfixtures

import "testing"

func TestIDSequenceOrder(t *testing.T) {
	gen := NewIDSequence("job")
	if got := gen.Next(); got != "job-1" {
		t.Fatalf("expected job-1, got %s", got)
	}
	if got := gen.Next(); got != "job-2" {
		t.Fatalf("expected job-2, got %s", got)
	}

	gen.Reset(41)
	if got := gen.Next(); got != "job-42" {
		t.Fatalf("expected job-42 after reset, got %s", got)
	}
}

func TestIDSequenceDefaultPrefix(t *testing.T) {
	gen := NewIDSequence("")
	if got := gen.Next(); got != "id-1" {
		t.Fatalf("expected id-1, got %s", got)
	}
}

func TestIDSequenceNilNextFunc(t *testing.T) {
	var gen *IDSequence
	fn := gen.NextFunc()
	if got := fn(); got != "" {
		t.Fatalf("expected empty id from nil generator, got %q", got)
	}
}
