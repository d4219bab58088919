package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type batchTestEnv struct {
	DB      *gorm.DB
	Orders  *OrderService
	Batches *BatchService
	BatchID string
}

func setupBatchTest(t *testing.T, shelfLifeDays int) *batchTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	env := &batchTestEnv{
		DB:      db,
		Orders:  NewOrderService(repos, db),
		Batches: NewBatchService(repos, nil, "", zap.NewNop()),
	}

	p := testutil.SeedProduct(t, db, "prod-001", "PRD-001", nil)
	if shelfLifeDays > 0 {
		db.Model(p).Update("shelf_life_days", shelfLifeDays)
	}

	order, err := env.Orders.CreateOrder(context.Background(), planner, &CreateOrderRequest{
		ProductID: "prod-001", Quantity: 60,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	started, err := env.Orders.StartOrder(context.Background(), planner, order.ID, nil)
	if err != nil {
		t.Fatalf("start order: %v", err)
	}
	env.BatchID = started.BatchIDs[0]
	return env
}

func TestCompleteBatchIsSetOnce(t *testing.T) {
	env := setupBatchTest(t, 0)

	// negative quantity rejected
	if _, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{
		ActualQty: -1,
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for negative qty, got %v", err)
	}

	b, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{
		ActualQty: 58.5,
	})
	if err != nil {
		t.Fatalf("complete batch: %v", err)
	}
	if b.Status != entity.BatchStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", b.Status)
	}
	if b.ActualQty == nil || *b.ActualQty != 58.5 {
		t.Fatalf("actual qty must be recorded, got %v", b.ActualQty)
	}
	if b.CompletedBy == nil || *b.CompletedBy != planner.UserID {
		t.Fatalf("completed_by must be recorded, got %v", b.CompletedBy)
	}

	// second completion cannot overwrite the recorded quantity
	if _, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{
		ActualQty: 99,
	}); apperr.KindOf(err) != apperr.KindInvalidOperation {
		t.Fatalf("expected INVALID_OPERATION for re-complete, got %v", err)
	}

	var stored entity.Batch
	env.DB.First(&stored, "id = ?", env.BatchID)
	if stored.ActualQty == nil || *stored.ActualQty != 58.5 {
		t.Fatalf("actual qty must survive re-complete attempts, got %v", stored.ActualQty)
	}
}

func TestCompleteBatchExpiration(t *testing.T) {
	env := setupBatchTest(t, 180)

	b, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{
		ActualQty: 60,
	})
	if err != nil {
		t.Fatalf("complete batch: %v", err)
	}
	if b.ManufactureDate == nil || b.ExpirationDate == nil {
		t.Fatalf("shelf-life product must get both dates, got %+v", b)
	}
	if got := b.ExpirationDate.Sub(*b.ManufactureDate).Hours() / 24; got < 179 || got > 181 {
		t.Fatalf("expected 180 day shelf life, got %.1f days", got)
	}
}

func TestStartBatch(t *testing.T) {
	env := setupBatchTest(t, 0)

	b, err := env.Batches.StartBatch(context.Background(), planner, env.BatchID)
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if b.Status != entity.BatchStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", b.Status)
	}

	// restart is a no-op
	if _, err := env.Batches.StartBatch(context.Background(), planner, env.BatchID); err != nil {
		t.Fatalf("restart must be idempotent: %v", err)
	}

	if _, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{ActualQty: 60}); err != nil {
		t.Fatalf("complete batch: %v", err)
	}
	if _, err := env.Batches.StartBatch(context.Background(), planner, env.BatchID); apperr.KindOf(err) != apperr.KindInvalidStatus {
		t.Fatalf("expected INVALID_STATUS starting a completed batch, got %v", err)
	}
}

func TestSetQC(t *testing.T) {
	env := setupBatchTest(t, 0)

	// QC before completion is rejected
	if _, err := env.Batches.SetQC(context.Background(), planner, env.BatchID, &SetQCRequest{
		QCStatus: entity.QCStatusPass,
	}); apperr.KindOf(err) != apperr.KindInvalidStatus {
		t.Fatalf("expected INVALID_STATUS for QC before completion, got %v", err)
	}

	if _, err := env.Batches.CompleteBatch(context.Background(), planner, env.BatchID, &CompleteBatchRequest{ActualQty: 60}); err != nil {
		t.Fatalf("complete batch: %v", err)
	}

	// only PASS or FAIL accepted
	if _, err := env.Batches.SetQC(context.Background(), planner, env.BatchID, &SetQCRequest{
		QCStatus: "MAYBE",
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for bad QC status, got %v", err)
	}

	b, err := env.Batches.SetQC(context.Background(), planner, env.BatchID, &SetQCRequest{
		QCStatus: entity.QCStatusFail, Notes: "外观不合格",
	})
	if err != nil {
		t.Fatalf("set QC: %v", err)
	}
	if b.QCStatus != entity.QCStatusFail {
		t.Fatalf("expected FAIL, got %s", b.QCStatus)
	}
}

func TestUploadCoAWithoutStorage(t *testing.T) {
	env := setupBatchTest(t, 0)
	if _, err := env.Batches.UploadCoA(context.Background(), planner, env.BatchID, nil, "coa.pdf", 0, "application/pdf"); apperr.KindOf(err) != apperr.KindInvalidOperation {
		t.Fatalf("expected INVALID_OPERATION without object storage, got %v", err)
	}
}
