package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories MES仓库集合
type Repositories struct {
	Product     *ProductRepository
	Template    *TemplateRepository
	Order       *OrderRepository
	Run         *RunRepository
	Step        *StepRepository
	Inventory   *InventoryRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建MES仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:     NewProductRepository(db),
		Template:    NewTemplateRepository(db),
		Order:       NewOrderRepository(db),
		Run:         NewRunRepository(db),
		Step:        NewStepRepository(db),
		Inventory:   NewInventoryRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}
