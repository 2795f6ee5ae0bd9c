package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name     string    `json:"name" validate:"required,max=4"`
	BeamSize int       `json:"beam_size" validate:"min=1,max=64"`
	Mode     string    `yaml:"mode" validate:"omitempty,oneof=raw renormalized"`
	Features []float32 `json:"features" validate:"min=1"`
}

func TestStructValid(t *testing.T) {
	t.Parallel()

	s := sample{Name: "coco", BeamSize: 3, Mode: "raw", Features: []float32{1}}
	if err := Struct(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructMessages(t *testing.T) {
	t.Parallel()

	s := sample{Name: "toolong", BeamSize: 0, Mode: "other"}
	err := Struct(&s)
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if len(verr.Fields) != 4 {
		t.Fatalf("expected 4 failures, got %+v", verr.Fields)
	}

	want := []string{
		"name must be at most 4 characters",
		"beam_size must be at least 1",
		"mode must be one of: raw renormalized",
		"features must be at least 1 items",
	}
	for i, msg := range want {
		if verr.Fields[i].Message != msg {
			t.Errorf("field %d: got %q want %q", i, verr.Fields[i].Message, msg)
		}
	}
	if !strings.Contains(err.Error(), "beam_size must be at least 1") {
		t.Fatalf("combined message missing field: %s", err.Error())
	}
}

func TestStructRequired(t *testing.T) {
	t.Parallel()

	err := Struct(&sample{BeamSize: 1, Features: []float32{1}})
	if err == nil || err.Error() != "name is required" {
		t.Fatalf("unexpected error: %v", err)
	}
}
