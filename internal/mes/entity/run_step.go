package entity

import "time"

// StepStatus 工步状态
const (
	StepStatusPending    = "PENDING"
	StepStatusClaimed    = "CLAIMED"
	StepStatusInProgress = "IN_PROGRESS"
	StepStatusDone       = "DONE"
	StepStatusSkipped    = "SKIPPED"
)

// StepSource 工步来源
const (
	StepSourceTemplate = "TEMPLATE"
	StepSourceAdhoc    = "ADHOC"
)

// ValidStepTransitions 工步状态机
// SKIPPED 可从任意非终态进入，在迁移表之外单独判定。
var ValidStepTransitions = map[string][]string{
	StepStatusPending:    {StepStatusClaimed, StepStatusInProgress},
	StepStatusClaimed:    {StepStatusInProgress},
	StepStatusInProgress: {StepStatusDone},
	StepStatusDone:       {},
	StepStatusSkipped:    {},
}

// StepTerminal 工步是否处于终态（状态机中无出边）
func StepTerminal(status string) bool {
	targets, ok := ValidStepTransitions[status]
	return ok && len(targets) == 0
}

// RunStep 运行工步
// 开工时由模板克隆（source=TEMPLATE）或执行中临时添加（source=ADHOC）。
// 不变式：skip_reason 非空当且仅当 status=SKIPPED。
type RunStep struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	RunID      string  `json:"run_id" gorm:"size:32;not null;index"`
	TemplateID *string `json:"template_id" gorm:"size:32"`
	Source     string  `json:"source" gorm:"size:20;not null;default:TEMPLATE"`
	Key        string  `json:"key" gorm:"size:64"`
	Label      string  `json:"label" gorm:"size:200;not null"`
	Required   bool    `json:"required" gorm:"not null;default:false"`
	Overridden bool    `json:"overridden" gorm:"not null;default:false"` // 模板克隆被逐运行修改过
	SortOrder  int     `json:"sort_order" gorm:"not null;default:0"`

	Status           string     `json:"status" gorm:"size:20;not null;default:PENDING;index"`
	AssignedToUserID *string    `json:"assigned_to_user_id" gorm:"size:32;index"`
	ClaimedAt        *time.Time `json:"claimed_at"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	SkippedAt        *time.Time `json:"skipped_at"`
	SkipReason       *string    `json:"skip_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RunStep) TableName() string {
	return "mes_run_steps"
}

// StepTimestamps 迁移结果中回传的时间戳集合
type StepTimestamps struct {
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SkippedAt   *time.Time `json:"skipped_at,omitempty"`
}

// Timestamps 提取工步时间戳
func (s *RunStep) Timestamps() StepTimestamps {
	return StepTimestamps{
		ClaimedAt:   s.ClaimedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		SkippedAt:   s.SkippedAt,
	}
}
