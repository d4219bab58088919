package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 健康度结论
const (
	HealthOK        = "OK"
	HealthAttention = "ATTENTION"
)

const healthSummaryCacheKey = "mes:health:summary"

// HealthConfig 健康度判定参数
type HealthConfig struct {
	StalledStepThreshold time.Duration // 工步开工后超过该时长未完工视为停滞
	CacheTTL             time.Duration // 看板汇总缓存时长
}

// RunHealth 单个运行的健康度
// 纯读侧聚合，不写任何状态。
type RunHealth struct {
	RunID            string `json:"run_id"`
	OrderID          string `json:"order_id"`
	OrderCode        string `json:"order_code"`
	RunStatus        string `json:"run_status"`
	Health           string `json:"health"`
	Blocked          bool   `json:"blocked"`
	HasRequiredSkips bool   `json:"has_required_skips"`
	HasStalledStep   bool   `json:"has_stalled_step"`
	StepsTotal       int    `json:"steps_total"`
	StepsDone        int    `json:"steps_done"`
	BatchesTotal     int    `json:"batches_total"`
	BatchesCompleted int    `json:"batches_completed"`
}

// HealthSummary 看板汇总
type HealthSummary struct {
	ActiveRuns        int         `json:"active_runs"`
	RunsOK            int         `json:"runs_ok"`
	RunsAttention     int         `json:"runs_attention"`
	RunsBlocked       int         `json:"runs_blocked"`
	RunsRequiredSkips int         `json:"runs_required_skips"`
	RunsStalled       int         `json:"runs_stalled"`
	Runs              []RunHealth `json:"runs"`
	GeneratedAt       time.Time   `json:"generated_at"`
}

// EvaluateRunHealth 单运行健康度折叠
// has_required_skips 只看事实：存在被跳过的必做工步即为真。
// 跳过之后若再无任何工步完工，缺口未被产线越过，运行判为 blocked；
// 后续仍有完工说明已继续推进，仅保留跳过标记不再判阻塞。
// 停滞只对 PLANNED / IN_PROGRESS 的运行有意义。
func EvaluateRunHealth(order *entity.ProductionOrder, run *entity.ProductionRun, now time.Time, stalledThreshold time.Duration) RunHealth {
	h := RunHealth{
		RunID:        run.ID,
		OrderID:      order.ID,
		OrderCode:    order.OrderCode,
		RunStatus:    entity.DeriveRunStatus(order.Status, run.Batches, run.Steps),
		StepsTotal:   len(run.Steps),
		BatchesTotal: len(run.Batches),
	}

	var lastDone *time.Time
	for i := range run.Steps {
		s := &run.Steps[i]
		if s.Status == entity.StepStatusDone {
			h.StepsDone++
			if s.CompletedAt != nil && (lastDone == nil || s.CompletedAt.After(*lastDone)) {
				lastDone = s.CompletedAt
			}
		}
	}

	running := h.RunStatus == entity.RunStatusPlanned || h.RunStatus == entity.RunStatusInProgress
	unresolvedSkip := false
	for i := range run.Steps {
		s := &run.Steps[i]
		if s.Status == entity.StepStatusSkipped && s.Required {
			h.HasRequiredSkips = true
			if s.SkippedAt == nil || lastDone == nil || !lastDone.After(*s.SkippedAt) {
				unresolvedSkip = true
			}
		}
		if running && s.Status == entity.StepStatusInProgress && s.StartedAt != nil &&
			now.Sub(*s.StartedAt) > stalledThreshold {
			h.HasStalledStep = true
		}
	}
	h.Blocked = h.RunStatus == entity.RunStatusBlocked || unresolvedSkip

	for _, b := range run.Batches {
		if b.Status == entity.BatchStatusCompleted {
			h.BatchesCompleted++
		}
	}

	if h.Blocked || h.HasRequiredSkips || h.HasStalledStep {
		h.Health = HealthAttention
	} else {
		h.Health = HealthOK
	}
	return h
}

// HealthService 运行健康度聚合
// 看板汇总先查 Redis，未命中时全量折叠一次并回填；单运行查询永远实时。
type HealthService struct {
	runRepo   *repository.RunRepository
	orderRepo *repository.OrderRepository
	rdb       *redis.Client
	cfg       HealthConfig
	logger    *zap.Logger
}

func NewHealthService(repos *repository.Repositories, rdb *redis.Client, cfg HealthConfig, logger *zap.Logger) *HealthService {
	if cfg.StalledStepThreshold <= 0 {
		cfg.StalledStepThreshold = 4 * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &HealthService{
		runRepo:   repos.Run,
		orderRepo: repos.Order,
		rdb:       rdb,
		cfg:       cfg,
		logger:    logger,
	}
}

// GetRunHealth 查询单个运行的健康度
func (s *HealthService) GetRunHealth(ctx context.Context, actor Actor, runID string) (*RunHealth, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceDashboard, auth.ActionRead); err != nil {
		return nil, err
	}

	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "运行不存在: %s", runID)
		}
		return nil, err
	}
	order, err := s.orderRepo.FindByID(ctx, run.OrderID)
	if err != nil {
		return nil, err
	}

	h := EvaluateRunHealth(order, run, time.Now(), s.cfg.StalledStepThreshold)
	return &h, nil
}

// Summarize 看板汇总，带缓存
func (s *HealthService) Summarize(ctx context.Context, actor Actor) (*HealthSummary, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceDashboard, auth.ActionRead); err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, healthSummaryCacheKey).Bytes(); err == nil {
			var cached HealthSummary
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	summary, err := s.buildSummary(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.rdb.Set(ctx, healthSummaryCacheKey, raw, s.cfg.CacheTTL).Err(); err != nil {
				s.logger.Warn("health summary cache write failed", zap.Error(err))
			}
		}
	}
	return summary, nil
}

// InvalidateSummary 状态变更后清掉汇总缓存
func (s *HealthService) InvalidateSummary(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, healthSummaryCacheKey).Err(); err != nil {
		s.logger.Warn("health summary cache invalidation failed", zap.Error(err))
	}
}

func (s *HealthService) buildSummary(ctx context.Context) (*HealthSummary, error) {
	runs, err := s.runRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summary := &HealthSummary{
		Runs:        make([]RunHealth, 0, len(runs)),
		GeneratedAt: now,
	}

	for i := range runs {
		run := &runs[i]
		order, err := s.orderRepo.FindByID(ctx, run.OrderID)
		if err != nil {
			s.logger.Warn("skip run with unreadable order",
				zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		h := EvaluateRunHealth(order, run, now, s.cfg.StalledStepThreshold)
		if !entity.RunActive(h.RunStatus) {
			continue
		}
		summary.Runs = append(summary.Runs, h)
		summary.ActiveRuns++
		if h.Health == HealthAttention {
			summary.RunsAttention++
		} else {
			summary.RunsOK++
		}
		if h.Blocked {
			summary.RunsBlocked++
		}
		if h.HasRequiredSkips {
			summary.RunsRequiredSkips++
		}
		if h.HasStalledStep {
			summary.RunsStalled++
		}
	}

	metrics.ActiveRuns.Set(float64(summary.ActiveRuns))
	metrics.RunsWithRequiredSkips.Set(float64(summary.RunsRequiredSkips))
	return summary, nil
}
