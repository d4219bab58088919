package handler

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiTestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// setupAPITest wires the full stack the way the server does, minus redis and minio.
func setupAPITest(t *testing.T) *apiTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, nil, nil, "", service.HealthConfig{}, zap.NewNop())
	h := NewHandlers(services)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")

	orders := api.Group("/orders")
	{
		orders.POST("", h.Order.Create)
		orders.GET("", h.Order.List)
		orders.GET("/:id", h.Order.Get)
		orders.POST("/:id/start", h.Order.Start)
		orders.POST("/:id/block", h.Order.Block)
		orders.POST("/:id/archive", h.Order.Archive)
		orders.POST("/:id/complete", h.Order.Complete)
	}
	runs := api.Group("/runs")
	{
		runs.GET("/:id", h.Order.GetRun)
		runs.GET("/:id/health", h.Dashboard.RunHealth)
		runs.GET("/:id/steps", h.Step.List)
		runs.POST("/:id/steps", h.Step.Add)
	}
	steps := api.Group("/steps")
	{
		steps.POST("/:id/claim", h.Step.Claim)
		steps.POST("/:id/start", h.Step.Start)
		steps.POST("/:id/complete", h.Step.Complete)
		steps.POST("/:id/skip", h.Step.Skip)
	}
	inventory := api.Group("/inventory")
	{
		inventory.POST("/issue", h.Issuance.Issue)
	}
	api.GET("/dashboard/summary", h.Dashboard.Summary)

	return &apiTestEnv{DB: db, Router: r}
}

var plannerToken = testutil.GenerateTestToken("u-planner", "计划员", "PRODUCTION")

// startOrderViaAPI creates and starts an order, returning order and run IDs.
func startOrderViaAPI(t *testing.T, env *apiTestEnv, qty float64) (orderID, runID string) {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/orders", map[string]interface{}{
		"product_id": "prod-001",
		"quantity":   qty,
	}, plannerToken)
	if w.Code != 201 {
		t.Fatalf("expected 201 creating order, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	orderID = data["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/start", nil, plannerToken)
	if w.Code != 200 {
		t.Fatalf("expected 200 starting order, got %d: %s", w.Code, w.Body.String())
	}
	result := testutil.ParseResponse(w)["data"].(map[string]interface{})
	runID = result["run_id"].(string)
	return orderID, runID
}

func TestOrderAPILifecycle(t *testing.T) {
	env := setupAPITest(t)
	size := 40.0
	testutil.SeedProduct(t, env.DB, "prod-001", "PRD-001", &size)
	testutil.SeedStepTemplate(t, env.DB, "tpl-1", "prod-001", "mix", 1, true)

	orderID, runID := startOrderViaAPI(t, env, 100)

	// 100 at batch size 40 → 3 batches
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/runs/"+runID, nil, plannerToken)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	run := data["run"].(map[string]interface{})
	if batches := run["batches"].([]interface{}); len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if data["status"] != entity.RunStatusPlanned {
		t.Fatalf("expected PLANNED run, got %v", data["status"])
	}

	// block without a reason is a 400
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/block", map[string]interface{}{}, plannerToken)
	if w.Code != 400 {
		t.Fatalf("expected 400 blocking without reason, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/block", map[string]interface{}{
		"reason": "缺关键物料",
	}, plannerToken)
	if w.Code != 200 {
		t.Fatalf("expected 200 blocking, got %d: %s", w.Code, w.Body.String())
	}

	// complete with nothing produced: 422 and every open batch listed
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/start", nil, plannerToken)
	if w.Code != 200 {
		t.Fatalf("expected 200 resuming, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders/"+orderID+"/complete", nil, plannerToken)
	if w.Code != 422 {
		t.Fatalf("expected 422 completing with open batches, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["code"].(float64)) != 42200 {
		t.Fatalf("expected code 42200, got %v", resp["code"])
	}
	if incomplete := resp["data"].([]interface{}); len(incomplete) != 3 {
		t.Fatalf("expected 3 incomplete batches in details, got %d", len(incomplete))
	}
}

func TestStepAPIClaimConflict(t *testing.T) {
	env := setupAPITest(t)
	testutil.SeedProduct(t, env.DB, "prod-001", "PRD-001", nil)
	testutil.SeedStepTemplate(t, env.DB, "tpl-1", "prod-001", "mix", 1, true)
	_, runID := startOrderViaAPI(t, env, 10)

	var step entity.RunStep
	if err := env.DB.Where("run_id = ?", runID).First(&step).Error; err != nil {
		t.Fatalf("load step: %v", err)
	}

	wang := testutil.OperatorToken("op-wang")
	li := testutil.OperatorToken("op-li")

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/steps/"+step.ID+"/claim", nil, wang)
	if w.Code != 200 {
		t.Fatalf("expected 200 claiming, got %d: %s", w.Code, w.Body.String())
	}

	// second operator is rejected with a conflict
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/steps/"+step.ID+"/claim", nil, li)
	if w.Code != 409 {
		t.Fatalf("expected 409 for second claim, got %d: %s", w.Code, w.Body.String())
	}
	if resp := testutil.ParseResponse(w); int(resp["code"].(float64)) != 40900 {
		t.Fatalf("expected code 40900, got %v", resp["code"])
	}

	// the holder retrying gets a 200
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/steps/"+step.ID+"/claim", nil, wang)
	if w.Code != 200 {
		t.Fatalf("expected 200 for holder retry, got %d: %s", w.Code, w.Body.String())
	}

	// short skip reason is a validation error
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/steps/"+step.ID+"/skip", map[string]interface{}{
		"reason": "ok",
	}, wang)
	if w.Code != 400 {
		t.Fatalf("expected 400 for short skip reason, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIssueAPIShortage(t *testing.T) {
	env := setupAPITest(t)
	testutil.SeedProduct(t, env.DB, "prod-001", "PRD-001", nil)
	orderID, _ := startOrderViaAPI(t, env, 10)

	mat := &entity.Material{ID: "mat-1", Code: "MAT-001", Name: "物料 MAT-001", Unit: "kg", Status: "active"}
	if err := env.DB.Create(mat).Error; err != nil {
		t.Fatalf("seed material: %v", err)
	}
	testutil.SeedInventory(t, env.DB, "inv-1", "mat-1", "WH-A", 10, 0)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/inventory/issue", map[string]interface{}{
		"order_id": orderID,
		"lines": []map[string]interface{}{
			{"material_id": "mat-1", "location_id": "WH-A", "quantity": 25},
		},
	}, testutil.OperatorToken("op-wang"))
	if w.Code != 409 {
		t.Fatalf("expected 409 on shortage, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["code"].(float64)) != 40910 {
		t.Fatalf("expected code 40910, got %v", resp["code"])
	}
	lines := resp["data"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("expected 1 short line, got %d", len(lines))
	}
	line := lines[0].(map[string]interface{})
	if line["available"].(float64) != 10 || line["requested"].(float64) != 25 {
		t.Fatalf("unexpected short line: %v", line)
	}

	// stock untouched
	var inv entity.Inventory
	env.DB.First(&inv, "id = ?", "inv-1")
	if inv.OnHandQty != 10 {
		t.Fatalf("shortage must leave stock untouched, got %.2f", inv.OnHandQty)
	}
}

func TestAPIAuth(t *testing.T) {
	env := setupAPITest(t)
	testutil.SeedProduct(t, env.DB, "prod-001", "PRD-001", nil)

	// no token
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/orders", nil, "")
	if w.Code != 401 {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// viewer can read but not write
	viewer := testutil.GenerateTestToken("u-viewer", "观察员", "VIEWER")
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/orders", nil, viewer)
	if w.Code != 200 {
		t.Fatalf("expected 200 for viewer list, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/orders", map[string]interface{}{
		"product_id": "prod-001", "quantity": 10,
	}, viewer)
	if w.Code != 403 {
		t.Fatalf("expected 403 for viewer create, got %d: %s", w.Code, w.Body.String())
	}

	// dashboard summary readable by viewer
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/dashboard/summary", nil, viewer)
	if w.Code != 200 {
		t.Fatalf("expected 200 for summary, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if _, ok := data["active_runs"]; !ok {
		t.Fatalf("summary must report active_runs, got %v", data)
	}
}
