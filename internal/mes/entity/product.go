package entity

import "time"

// Product 产品
type Product struct {
	ID               string     `json:"id" gorm:"primaryKey;size:32"`
	Code             string     `json:"code" gorm:"size:64;uniqueIndex;not null"`
	Name             string     `json:"name" gorm:"size:200;not null"`
	DefaultBatchSize *float64   `json:"default_batch_size" gorm:"type:decimal(12,4)"` // 未设置时整单一个批次
	Unit             string     `json:"unit" gorm:"size:20;not null;default:pcs"`
	ShelfLifeDays    int        `json:"shelf_life_days" gorm:"default:0"` // 0=不设有效期
	Status           string     `json:"status" gorm:"size:20;default:active"`
	Notes            string     `json:"notes" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at" gorm:"index"`

	StepTemplates []ProductStepTemplate `json:"step_templates,omitempty" gorm:"foreignKey:ProductID"`
}

func (Product) TableName() string {
	return "mes_products"
}

// Material 原材料
type Material struct {
	ID        string     `json:"id" gorm:"primaryKey;size:32"`
	Code      string     `json:"code" gorm:"size:64;uniqueIndex;not null"`
	Name      string     `json:"name" gorm:"size:200;not null"`
	Category  string     `json:"category" gorm:"size:50"`
	Unit      string     `json:"unit" gorm:"size:20;not null;default:pcs"`
	Status    string     `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at" gorm:"index"`
}

func (Material) TableName() string {
	return "mes_materials"
}
