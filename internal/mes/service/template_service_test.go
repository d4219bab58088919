package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
)

func TestTemplateCRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewTemplateService(repos)
	orders := NewOrderService(repos, db)

	testutil.SeedProduct(t, db, "prod-001", "PRD-001", nil)

	tpl, err := svc.CreateTemplate(context.Background(), planner, "prod-001", &CreateTemplateRequest{
		Key: "mix", Label: "搅拌", SortOrder: 1, Required: true,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	// key is unique per product
	if _, err := svc.CreateTemplate(context.Background(), planner, "prod-001", &CreateTemplateRequest{
		Key: "mix", Label: "搅拌二号",
	}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected CONFLICT for duplicate key, got %v", err)
	}

	// blank key rejected
	if _, err := svc.CreateTemplate(context.Background(), planner, "prod-001", &CreateTemplateRequest{
		Key: "   ", Label: "匿名",
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for blank key, got %v", err)
	}

	// unknown product rejected
	if _, err := svc.CreateTemplate(context.Background(), planner, "nope", &CreateTemplateRequest{
		Key: "pack", Label: "包装",
	}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected NOT_FOUND for unknown product, got %v", err)
	}

	label := "高速搅拌"
	updated, err := svc.UpdateTemplate(context.Background(), planner, tpl.ID, &UpdateTemplateRequest{Label: &label})
	if err != nil {
		t.Fatalf("update template: %v", err)
	}
	if updated.Label != label || !updated.Required {
		t.Fatalf("partial update must keep untouched fields, got %+v", updated)
	}

	// template edits after a start do not touch already cloned steps
	order, err := orders.CreateOrder(context.Background(), planner, &CreateOrderRequest{
		ProductID: "prod-001", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	started, err := orders.StartOrder(context.Background(), planner, order.ID, nil)
	if err != nil {
		t.Fatalf("start order: %v", err)
	}
	other := "改名后的搅拌"
	if _, err := svc.UpdateTemplate(context.Background(), planner, tpl.ID, &UpdateTemplateRequest{Label: &other}); err != nil {
		t.Fatalf("update template after start: %v", err)
	}
	var step entity.RunStep
	if err := db.Where("run_id = ?", started.RunID).First(&step).Error; err != nil {
		t.Fatalf("load cloned step: %v", err)
	}
	if step.Label != label {
		t.Fatalf("cloned step must keep the label from start time, got %s", step.Label)
	}

	if err := svc.DeleteTemplate(context.Background(), planner, tpl.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if _, err := svc.UpdateTemplate(context.Background(), planner, tpl.ID, &UpdateTemplateRequest{Label: &label}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
}
