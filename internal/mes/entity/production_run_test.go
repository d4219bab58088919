package entity

import "testing"

func TestDeriveRunStatus(t *testing.T) {
	tests := []struct {
		name        string
		orderStatus string
		batches     []Batch
		steps       []RunStep
		want        string
	}{
		{
			name:        "blocked order wins over everything",
			orderStatus: OrderStatusBlocked,
			batches:     []Batch{{Status: BatchStatusCompleted}},
			steps:       []RunStep{{Status: StepStatusDone}},
			want:        RunStatusBlocked,
		},
		{
			name:        "all batches completed",
			orderStatus: OrderStatusInProgress,
			batches:     []Batch{{Status: BatchStatusCompleted}, {Status: BatchStatusCompleted}},
			want:        RunStatusCompleted,
		},
		{
			name:        "one batch in progress",
			orderStatus: OrderStatusInProgress,
			batches:     []Batch{{Status: BatchStatusInProgress}, {Status: BatchStatusPlanned}},
			want:        RunStatusInProgress,
		},
		{
			name:        "step moved but batches untouched",
			orderStatus: OrderStatusInProgress,
			batches:     []Batch{{Status: BatchStatusPlanned}},
			steps:       []RunStep{{Status: StepStatusClaimed}, {Status: StepStatusPending}},
			want:        RunStatusInProgress,
		},
		{
			name:        "nothing moved",
			orderStatus: OrderStatusInProgress,
			batches:     []Batch{{Status: BatchStatusPlanned}},
			steps:       []RunStep{{Status: StepStatusPending}},
			want:        RunStatusPlanned,
		},
		{
			name:        "no batches no steps",
			orderStatus: OrderStatusInProgress,
			want:        RunStatusPlanned,
		},
		{
			name:        "skipped step counts as movement",
			orderStatus: OrderStatusInProgress,
			batches:     []Batch{{Status: BatchStatusPlanned}},
			steps:       []RunStep{{Status: StepStatusSkipped}},
			want:        RunStatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveRunStatus(tt.orderStatus, tt.batches, tt.steps)
			if got != tt.want {
				t.Fatalf("DeriveRunStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOrderTransitions(t *testing.T) {
	// terminal states have no outgoing transitions
	for _, terminal := range []string{OrderStatusCompleted, OrderStatusArchived} {
		if targets := ValidOrderTransitions[terminal]; len(targets) != 0 {
			t.Fatalf("expected no transitions out of %s, got %v", terminal, targets)
		}
	}

	if !OrderCanTransition(OrderStatusBlocked, OrderStatusInProgress) {
		t.Fatal("blocked order must be resumable")
	}
	if !OrderCanTransition(OrderStatusBlocked, OrderStatusArchived) {
		t.Fatal("blocked order must be archivable")
	}
	if OrderCanTransition(OrderStatusDraft, OrderStatusCompleted) {
		t.Fatal("draft order must not complete directly")
	}
	if OrderCanTransition(OrderStatusCompleted, OrderStatusInProgress) {
		t.Fatal("completed order must not restart")
	}
}

func TestStepTransitions(t *testing.T) {
	if !StepTerminal(StepStatusDone) || !StepTerminal(StepStatusSkipped) {
		t.Fatal("DONE and SKIPPED must be terminal")
	}
	if StepTerminal(StepStatusInProgress) {
		t.Fatal("IN_PROGRESS must not be terminal")
	}

	// DONE only reachable from IN_PROGRESS
	for from, targets := range ValidStepTransitions {
		for _, to := range targets {
			if to == StepStatusDone && from != StepStatusInProgress {
				t.Fatalf("DONE must only be reachable from IN_PROGRESS, found %s → DONE", from)
			}
		}
	}
}
