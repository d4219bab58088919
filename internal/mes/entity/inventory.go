package entity

import "time"

// TransactionType 库存交易类型
const (
	TxTypePurchaseIn    = "PURCHASE_IN"    // 采购入库
	TxTypeProductionIn  = "PRODUCTION_IN"  // 生产入库
	TxTypeProductionOut = "PRODUCTION_OUT" // 生产发料
	TxTypeAdjust        = "ADJUST"         // 库存调整
)

// Inventory 库存记录
// 同一 (material_id, location_id) 唯一一行；可用量 = on_hand_qty - reserved_qty。
type Inventory struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	MaterialID   string     `json:"material_id" gorm:"size:32;not null;uniqueIndex:idx_inventory_material_location"`
	MaterialCode string     `json:"material_code" gorm:"size:64"`
	MaterialName string     `json:"material_name" gorm:"size:200"`
	LocationID   string     `json:"location_id" gorm:"size:32;not null;uniqueIndex:idx_inventory_material_location"`
	OnHandQty    float64    `json:"on_hand_qty" gorm:"type:decimal(12,4);not null;default:0"`
	ReservedQty  float64    `json:"reserved_qty" gorm:"type:decimal(12,4);not null;default:0"`
	Unit         string     `json:"unit" gorm:"size:20;not null;default:pcs"`
	LastMovedAt  *time.Time `json:"last_moved_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Inventory) TableName() string {
	return "mes_inventory"
}

// AvailableQty 可发料数量
func (i *Inventory) AvailableQty() float64 {
	return i.OnHandQty - i.ReservedQty
}

// InventoryTransaction 库存交易记录
type InventoryTransaction struct {
	ID              string    `json:"id" gorm:"primaryKey;size:32"`
	MaterialID      string    `json:"material_id" gorm:"size:32;not null;index"`
	MaterialCode    string    `json:"material_code" gorm:"size:64"`
	LocationID      string    `json:"location_id" gorm:"size:32;not null"`
	TransactionType string    `json:"transaction_type" gorm:"size:20;not null"`
	Quantity        float64   `json:"quantity" gorm:"type:decimal(12,4);not null"` // 正=入，负=出
	ReferenceType   string    `json:"reference_type" gorm:"size:20;not null"`      // ORDER, BATCH
	ReferenceID     string    `json:"reference_id" gorm:"size:32;not null;index"`
	Notes           string    `json:"notes" gorm:"type:text"`
	CreatedBy       string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

func (InventoryTransaction) TableName() string {
	return "mes_inventory_transactions"
}
