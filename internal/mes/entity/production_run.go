package entity

import "time"

// RunStatus 生产运行状态（派生值，不落库）
const (
	RunStatusPlanned    = "PLANNED"
	RunStatusInProgress = "IN_PROGRESS"
	RunStatusCompleted  = "COMPLETED"
	RunStatusBlocked    = "BLOCKED"
)

// ProductionRun 生产运行
// 订单开工时恰好创建一次。运行状态不单独存储，始终由其下批次与工步派生。
type ProductionRun struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID   string    `json:"order_id" gorm:"size:32;not null;uniqueIndex"`
	ProductID string    `json:"product_id" gorm:"size:32;not null;index"`
	StartedBy string    `json:"started_by" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Batches []Batch   `json:"batches,omitempty" gorm:"foreignKey:RunID"`
	Steps   []RunStep `json:"steps,omitempty" gorm:"foreignKey:RunID"`
}

func (ProductionRun) TableName() string {
	return "mes_production_runs"
}

// DeriveRunStatus 从权威子记录派生运行状态
// 订单 BLOCKED 优先；全部批次完工即 COMPLETED；有任何工步或批次动过即 IN_PROGRESS。
func DeriveRunStatus(orderStatus string, batches []Batch, steps []RunStep) string {
	if orderStatus == OrderStatusBlocked {
		return RunStatusBlocked
	}

	if len(batches) > 0 {
		allDone := true
		for _, b := range batches {
			if b.Status != BatchStatusCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			return RunStatusCompleted
		}
	}

	for _, b := range batches {
		if b.Status == BatchStatusInProgress || b.Status == BatchStatusCompleted {
			return RunStatusInProgress
		}
	}
	for _, s := range steps {
		if s.Status != StepStatusPending {
			return RunStatusInProgress
		}
	}
	return RunStatusPlanned
}

// RunActive 运行是否仍在生产中（用于看板统计口径）
func RunActive(status string) bool {
	return status == RunStatusPlanned || status == RunStatusInProgress || status == RunStatusBlocked
}
