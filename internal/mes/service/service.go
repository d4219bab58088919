package service

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Product   *ProductService
	Template  *TemplateService
	Order     *OrderService
	Step      *StepService
	Batch     *BatchService
	Issuance  *IssuanceService
	Health    *HealthService
	Dashboard *DashboardService
}

// NewServices 创建服务集合
// rdb 和 minioClient 允许为 nil：缓存降级为直查，质检报告上传返回明确错误。
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, minioClient *minio.Client, bucketName string, healthCfg HealthConfig, logger *zap.Logger) *Services {
	health := NewHealthService(repos, rdb, healthCfg, logger)
	order := NewOrderService(repos, db)
	step := NewStepService(repos)
	batch := NewBatchService(repos, minioClient, bucketName, logger)
	// 订单/工步/批次的状态变更都会改变看板结论，共享同一份缓存失效入口
	order.health = health
	step.health = health
	batch.health = health
	return &Services{
		Product:   NewProductService(repos),
		Template:  NewTemplateService(repos),
		Order:     order,
		Step:      step,
		Batch:     batch,
		Issuance:  NewIssuanceService(repos, logger),
		Health:    health,
		Dashboard: NewDashboardService(health),
	}
}
