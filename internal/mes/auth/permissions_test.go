package auth

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		resource string
		action   string
		want     bool
	}{
		{"admin passes everything", RoleAdmin, ResourceStep, ActionAssign, true},
		{"admin passes unknown pair", RoleAdmin, "nosuch", "nosuch", true},
		{"production creates orders", RoleProduction, ResourceOrder, ActionCreate, true},
		{"operator cannot create orders", RoleOperator, ResourceOrder, ActionCreate, false},
		{"operator claims steps", RoleOperator, ResourceStep, ActionClaim, true},
		{"operator issues materials", RoleOperator, ResourceInventory, ActionIssue, true},
		{"production cannot assign steps", RoleProduction, ResourceStep, ActionAssign, false},
		{"operator cannot assign steps", RoleOperator, ResourceStep, ActionAssign, false},
		{"viewer reads dashboard", RoleViewer, ResourceDashboard, ActionRead, true},
		{"viewer cannot claim", RoleViewer, ResourceStep, ActionClaim, false},
		{"viewer cannot issue", RoleViewer, ResourceInventory, ActionIssue, false},
		{"unknown role denied", "GUEST", ResourceOrder, ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.role, tt.resource, tt.action); got != tt.want {
				t.Fatalf("Allowed(%s, %s, %s) = %v, want %v", tt.role, tt.resource, tt.action, got, tt.want)
			}
		})
	}
}

func TestViewerIsReadOnly(t *testing.T) {
	writes := []struct {
		resource string
		action   string
	}{
		{ResourceOrder, ActionCreate},
		{ResourceOrder, ActionStart},
		{ResourceOrder, ActionBlock},
		{ResourceOrder, ActionComplete},
		{ResourceStep, ActionClaim},
		{ResourceStep, ActionSkip},
		{ResourceStep, ActionDelete},
		{ResourceBatch, ActionComplete},
		{ResourceBatch, ActionQC},
		{ResourceTemplate, ActionCreate},
		{ResourceInventory, ActionIssue},
	}
	for _, w := range writes {
		if Allowed(RoleViewer, w.resource, w.action) {
			t.Fatalf("VIEWER must not be allowed %s.%s", w.resource, w.action)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := Check("", RoleAdmin, ResourceOrder, ActionRead); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected UNAUTHORIZED for empty user, got %v", err)
	}
	if err := Check("u1", RoleViewer, ResourceOrder, ActionStart); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected FORBIDDEN for viewer start, got %v", err)
	}
	if err := Check("u1", RoleProduction, ResourceOrder, ActionStart); err != nil {
		t.Fatalf("expected nil for production start, got %v", err)
	}
}
