package entity

import "time"

// ProductStepTemplate 产品工步模板
// 定义某产品的标准生产工步清单，按 sort_order 排序。
// 开工时被克隆为 RunStep 独立副本，此后模板的增删改不影响在制运行。
type ProductStepTemplate struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	ProductID string    `json:"product_id" gorm:"size:32;not null;uniqueIndex:idx_step_tpl_product_key"`
	Key       string    `json:"key" gorm:"size:64;not null;uniqueIndex:idx_step_tpl_product_key"`
	Label     string    `json:"label" gorm:"size:200;not null"`
	SortOrder int       `json:"sort_order" gorm:"not null;default:0"`
	Required  bool      `json:"required" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProductStepTemplate) TableName() string {
	return "mes_product_step_templates"
}
