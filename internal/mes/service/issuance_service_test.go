package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type issuanceTestEnv struct {
	DB      *gorm.DB
	Orders  *OrderService
	Issue   *IssuanceService
	OrderID string
	BatchID string
}

// setupIssuanceTest starts an order so it is eligible for issuance.
func setupIssuanceTest(t *testing.T) *issuanceTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	env := &issuanceTestEnv{
		DB:     db,
		Orders: NewOrderService(repos, db),
		Issue:  NewIssuanceService(repos, zap.NewNop()),
	}

	testutil.SeedProduct(t, db, "prod-001", "PRD-001", nil)
	order, err := env.Orders.CreateOrder(context.Background(), planner, &CreateOrderRequest{
		ProductID: "prod-001", Quantity: 100,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	started, err := env.Orders.StartOrder(context.Background(), planner, order.ID, nil)
	if err != nil {
		t.Fatalf("start order: %v", err)
	}
	env.OrderID = order.ID
	env.BatchID = started.BatchIDs[0]
	return env
}

func seedMaterial(t *testing.T, db *gorm.DB, id, code string) {
	t.Helper()
	m := &entity.Material{
		ID: id, Code: code, Name: "物料 " + code, Unit: "kg", Status: "active",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
}

func (env *issuanceTestEnv) onHand(t *testing.T, materialID, locationID string) float64 {
	t.Helper()
	var inv entity.Inventory
	if err := env.DB.Where("material_id = ? AND location_id = ?", materialID, locationID).First(&inv).Error; err != nil {
		t.Fatalf("load inventory %s@%s: %v", materialID, locationID, err)
	}
	return inv.OnHandQty
}

func TestIssueMaterials(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")
	seedMaterial(t, env.DB, "mat-2", "MAT-002")
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 100, 0)
	testutil.SeedInventory(t, env.DB, "inv-2", "mat-2", "WH-A", 50, 0)

	result, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: env.OrderID,
		Lines: []IssueLine{
			{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 30},
			{MaterialID: "mat-2", LocationID: "WH-A", Quantity: 20},
		},
		Notes: "首批投料",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(result.TransactionIDs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(result.TransactionIDs))
	}

	if got := env.onHand(t, "mat-1", "WH-A"); got != 70 {
		t.Fatalf("mat-1 on-hand: expected 70, got %.2f", got)
	}
	if got := env.onHand(t, "mat-2", "WH-A"); got != 30 {
		t.Fatalf("mat-2 on-hand: expected 30, got %.2f", got)
	}

	txns, err := env.Issue.ListTransactions(context.Background(), planner, env.OrderID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions on order, got %d", len(txns))
	}
	for _, txn := range txns {
		if txn.TransactionType != entity.TxTypeProductionOut {
			t.Fatalf("expected PRODUCTION_OUT, got %s", txn.TransactionType)
		}
		if txn.Quantity >= 0 {
			t.Fatalf("outbound quantity must be negative, got %.2f", txn.Quantity)
		}
	}
}

func TestIssueShortageIsAllOrNothing(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")
	seedMaterial(t, env.DB, "mat-2", "MAT-002")
	seedMaterial(t, env.DB, "mat-3", "MAT-003")
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 100, 0)
	// reserved stock is not issuable: available = 20
	testutil.SeedInventory(t, env.DB, "inv-2", "mat-2", "WH-A", 100, 80)
	// mat-3 has no inventory row at all

	_, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: env.OrderID,
		Lines: []IssueLine{
			{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 30},
			{MaterialID: "mat-2", LocationID: "WH-A", Quantity: 30},
			{MaterialID: "mat-3", LocationID: "WH-A", Quantity: 10},
		},
	})
	if apperr.KindOf(err) != apperr.KindShortage {
		t.Fatalf("expected MATERIAL_SHORTAGE, got %v", err)
	}

	ae, _ := apperr.AsError(err)
	shortages, ok := ae.Details.([]apperr.ShortLine)
	if !ok {
		t.Fatalf("details must be short lines, got %T", ae.Details)
	}
	if len(shortages) != 2 {
		t.Fatalf("every short line must be reported, expected 2, got %d", len(shortages))
	}
	byMaterial := make(map[string]apperr.ShortLine)
	for _, sl := range shortages {
		byMaterial[sl.MaterialID] = sl
	}
	if sl := byMaterial["mat-2"]; sl.Available != 20 || sl.Requested != 30 {
		t.Fatalf("mat-2 shortage: expected available 20 requested 30, got %+v", sl)
	}
	if sl := byMaterial["mat-3"]; sl.Available != 0 || sl.MaterialCode != "MAT-003" {
		t.Fatalf("missing row must report available 0 with material code, got %+v", sl)
	}

	// the sufficient line must not have been decremented
	if got := env.onHand(t, "mat-1", "WH-A"); got != 100 {
		t.Fatalf("shortage must roll back everything, mat-1 on-hand = %.2f", got)
	}
	var txnCount int64
	env.DB.Model(&entity.InventoryTransaction{}).Where("reference_id = ?", env.OrderID).Count(&txnCount)
	if txnCount != 0 {
		t.Fatalf("no transactions may be recorded on shortage, got %d", txnCount)
	}
}

func TestIssueValidation(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 100, 0)

	// empty lines
	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: env.OrderID, Lines: nil,
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for empty lines, got %v", err)
	}

	// non-positive quantity
	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: env.OrderID,
		Lines:   []IssueLine{{MaterialID: "mat-1", LocationID: "WH-A", Quantity: -5}},
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for negative quantity, got %v", err)
	}

	// issuance requires an in-progress order
	draft, err := env.Orders.CreateOrder(context.Background(), planner, &CreateOrderRequest{
		ProductID: "prod-001", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create draft order: %v", err)
	}
	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: draft.ID,
		Lines:   []IssueLine{{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 5}},
	}); apperr.KindOf(err) != apperr.KindInvalidStatus {
		t.Fatalf("expected INVALID_STATUS issuing to a DRAFT order, got %v", err)
	}

	// viewers cannot issue
	viewer := Actor{UserID: "u-viewer", Role: "VIEWER"}
	if _, err := env.Issue.Issue(context.Background(), viewer, &IssueRequest{
		OrderID: env.OrderID,
		Lines:   []IssueLine{{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 5}},
	}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected FORBIDDEN for viewer, got %v", err)
	}
}

func TestIssueAgainstBatch(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 100, 0)

	result, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		BatchID: env.BatchID,
		Lines:   []IssueLine{{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 30}},
	})
	if err != nil {
		t.Fatalf("issue to batch: %v", err)
	}
	if result.OrderID != env.OrderID || result.BatchID != env.BatchID {
		t.Fatalf("result must carry both order and batch, got %+v", result)
	}
	if got := env.onHand(t, "mat-1", "WH-A"); got != 70 {
		t.Fatalf("mat-1 on-hand: expected 70, got %.2f", got)
	}

	txns, err := env.Issue.ListTransactions(context.Background(), planner, env.BatchID)
	if err != nil {
		t.Fatalf("list batch transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction on batch, got %d", len(txns))
	}
	if txns[0].ReferenceType != "BATCH" || txns[0].ReferenceID != env.BatchID {
		t.Fatalf("transaction must reference the batch, got %+v", txns[0])
	}
}

func TestIssueReferenceValidation(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 100, 0)
	lines := []IssueLine{{MaterialID: "mat-1", LocationID: "WH-A", Quantity: 5}}

	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		OrderID: env.OrderID, BatchID: env.BatchID, Lines: lines,
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for ambiguous reference, got %v", err)
	}
	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		Lines: lines,
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for missing reference, got %v", err)
	}
	if _, err := env.Issue.Issue(context.Background(), opWang, &IssueRequest{
		BatchID: "no-such-batch", Lines: lines,
	}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected NOT_FOUND for unknown batch, got %v", err)
	}
}

func TestReceiveMaterials(t *testing.T) {
	env := setupIssuanceTest(t)
	seedMaterial(t, env.DB, "mat-1", "MAT-001")

	// first receipt creates the inventory row
	inv, err := env.Issue.Receive(context.Background(), opWang, &ReceiveRequest{
		MaterialID: "mat-1", LocationID: "WH-B", Quantity: 40,
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if inv.OnHandQty != 40 || inv.MaterialCode != "MAT-001" {
		t.Fatalf("unexpected inventory after receive: %+v", inv)
	}

	// second receipt accumulates
	inv, err = env.Issue.Receive(context.Background(), opWang, &ReceiveRequest{
		MaterialID: "mat-1", LocationID: "WH-B", Quantity: 10, TxType: entity.TxTypeAdjust,
	})
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if inv.OnHandQty != 50 {
		t.Fatalf("expected on-hand 50, got %.2f", inv.OnHandQty)
	}

	// unknown transaction type rejected
	if _, err := env.Issue.Receive(context.Background(), opWang, &ReceiveRequest{
		MaterialID: "mat-1", LocationID: "WH-B", Quantity: 5, TxType: "TRANSFER",
	}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected VALIDATION_ERROR for unknown tx type, got %v", err)
	}

	// unknown material rejected
	if _, err := env.Issue.Receive(context.Background(), opWang, &ReceiveRequest{
		MaterialID: "nope", LocationID: "WH-B", Quantity: 5,
	}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected NOT_FOUND for unknown material, got %v", err)
	}
}
