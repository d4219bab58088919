package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindConflict, "工步已被认领")
	if KindOf(err) != KindConflict {
		t.Fatalf("expected CONFLICT, got %s", KindOf(err))
	}

	// wrapped errors still resolve
	wrapped := fmt.Errorf("claim step: %w", err)
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected CONFLICT through wrap, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("db down")) != "" {
		t.Fatal("plain errors must have no kind")
	}
	if KindOf(nil) != "" {
		t.Fatal("nil must have no kind")
	}
}

func TestAsError(t *testing.T) {
	ae, ok := AsError(New(KindNotFound, "订单 %s 不存在", "o1"))
	if !ok {
		t.Fatal("expected business error")
	}
	if ae.Message != "订单 o1 不存在" {
		t.Fatalf("unexpected message: %s", ae.Message)
	}
	if _, ok := AsError(errors.New("boom")); ok {
		t.Fatal("plain error must not convert")
	}
}

func TestShortage(t *testing.T) {
	lines := []ShortLine{
		{MaterialID: "m1", MaterialCode: "MAT-001", LocationID: "L1", Requested: 10, Available: 3},
		{MaterialID: "m2", MaterialCode: "MAT-002", LocationID: "L1", Requested: 5, Available: 0},
	}
	err := Shortage(lines)
	if err.Kind != KindShortage {
		t.Fatalf("expected MATERIAL_SHORTAGE, got %s", err.Kind)
	}
	got, ok := err.Details.([]ShortLine)
	if !ok || len(got) != 2 {
		t.Fatalf("details must carry every short line, got %v", err.Details)
	}
}
