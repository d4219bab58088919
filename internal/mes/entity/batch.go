package entity

import "time"

// BatchStatus 批次状态
const (
	BatchStatusPlanned    = "PLANNED"
	BatchStatusInProgress = "IN_PROGRESS"
	BatchStatusCompleted  = "COMPLETED"
)

// QCStatus 批次质检状态
const (
	QCStatusPending = "PENDING"
	QCStatusPass    = "PASS"
	QCStatusFail    = "FAIL"
)

// Batch 生产批次
// ActualQty 与 COMPLETED 状态在批次完工时一次性写入，此后不可变。
type Batch struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	RunID           string     `json:"run_id" gorm:"size:32;not null;index"`
	ProductID       string     `json:"product_id" gorm:"size:32;not null;index"`
	BatchCode       string     `json:"batch_code" gorm:"size:50;uniqueIndex;not null"`
	PlannedQty      float64    `json:"planned_qty" gorm:"type:decimal(12,4);not null"`
	ActualQty       *float64   `json:"actual_qty" gorm:"type:decimal(12,4)"`
	Status          string     `json:"status" gorm:"size:20;not null;default:PLANNED"`
	QCStatus        string     `json:"qc_status" gorm:"size:20;not null;default:PENDING"`
	ManufactureDate *time.Time `json:"manufacture_date"`
	ExpirationDate  *time.Time `json:"expiration_date"`
	CoAObjectKey    string     `json:"coa_object_key" gorm:"size:512"` // 质检报告对象存储key
	CompletedBy     *string    `json:"completed_by" gorm:"size:32"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Batch) TableName() string {
	return "mes_batches"
}
