package entity

import "time"

// OrderStatus 生产订单状态
const (
	OrderStatusDraft      = "DRAFT"
	OrderStatusPlanned    = "PLANNED"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusBlocked    = "BLOCKED"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusArchived   = "ARCHIVED"
)

// ValidOrderTransitions 订单状态机
// COMPLETED / ARCHIVED 为终态。BLOCKED → IN_PROGRESS 表示恢复执行（不新建运行）。
var ValidOrderTransitions = map[string][]string{
	OrderStatusDraft:      {OrderStatusPlanned, OrderStatusInProgress},
	OrderStatusPlanned:    {OrderStatusInProgress, OrderStatusBlocked},
	OrderStatusInProgress: {OrderStatusBlocked, OrderStatusCompleted},
	OrderStatusBlocked:    {OrderStatusInProgress, OrderStatusArchived},
	OrderStatusCompleted:  {},
	OrderStatusArchived:   {},
}

// OrderCanTransition 判断订单状态迁移是否合法
func OrderCanTransition(from, to string) bool {
	for _, s := range ValidOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderStartable 可开工状态
func OrderStartable(status string) bool {
	return status == OrderStatusDraft || status == OrderStatusPlanned
}

// ProductionOrder 生产订单
type ProductionOrder struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	OrderCode   string     `json:"order_code" gorm:"size:50;uniqueIndex;not null"`
	ProductID   string     `json:"product_id" gorm:"size:32;not null;index"`
	ProductCode string     `json:"product_code" gorm:"size:64"`
	ProductName string     `json:"product_name" gorm:"size:200"`
	Quantity    float64    `json:"quantity" gorm:"type:decimal(12,4);not null"`
	Status      string     `json:"status" gorm:"size:20;not null;default:DRAFT;index"`
	AssignedTo  *string    `json:"assigned_to" gorm:"size:32"` // 弱引用，仅查找
	BlockReason string     `json:"block_reason" gorm:"type:text"`
	DueDate     *time.Time `json:"due_date"`
	Notes       string     `json:"notes" gorm:"type:text"`
	CreatedBy   string     `json:"created_by" gorm:"size:32;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at" gorm:"index"`

	Run *ProductionRun `json:"run,omitempty" gorm:"foreignKey:OrderID"`
}

func (ProductionOrder) TableName() string {
	return "mes_production_orders"
}
