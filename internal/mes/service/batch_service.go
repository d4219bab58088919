package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// BatchService 批次服务
// 批次完工是一次性的：actual_qty、completed_by、completed_at 随 COMPLETED
// 一起写入，此后不可修改，重复完工返回 INVALID_OPERATION。
type BatchService struct {
	runRepo     *repository.RunRepository
	orderRepo   *repository.OrderRepository
	productRepo *repository.ProductRepository
	auditRepo   *repository.ActivityLogRepository
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
	health      *HealthService // 可空，装配时注入
}

func (s *BatchService) invalidateHealth(ctx context.Context) {
	if s.health != nil {
		s.health.InvalidateSummary(ctx)
	}
}

func NewBatchService(repos *repository.Repositories, minioClient *minio.Client, bucketName string, logger *zap.Logger) *BatchService {
	return &BatchService{
		runRepo:     repos.Run,
		orderRepo:   repos.Order,
		productRepo: repos.Product,
		auditRepo:   repos.ActivityLog,
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

// GetBatch 批次详情
func (s *BatchService) GetBatch(ctx context.Context, actor Actor, batchID string) (*entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionRead); err != nil {
		return nil, err
	}
	return s.findBatch(ctx, batchID)
}

func (s *BatchService) findBatch(ctx context.Context, batchID string) (*entity.Batch, error) {
	b, err := s.runRepo.FindBatchByID(ctx, batchID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "批次不存在: %s", batchID)
		}
		return nil, err
	}
	return b, nil
}

// CompleteBatchRequest 批次完工请求
type CompleteBatchRequest struct {
	ActualQty float64 `json:"actual_qty" binding:"required"`
}

// CompleteBatch 批次完工
// 生产日期取完工时刻；产品设了保质期时同时推算失效日期。
func (s *BatchService) CompleteBatch(ctx context.Context, actor Actor, batchID string, req *CompleteBatchRequest) (*entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionComplete); err != nil {
		return nil, err
	}
	if req.ActualQty < 0 {
		return nil, apperr.New(apperr.KindValidation, "实际产量不能为负")
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var expiresAt *time.Time
	if product, perr := s.productRepo.FindByID(ctx, b.ProductID); perr == nil && product.ShelfLifeDays > 0 {
		exp := now.AddDate(0, 0, product.ShelfLifeDays)
		expiresAt = &exp
	}

	ok, err := s.runRepo.CompleteBatchGuarded(ctx, batchID, req.ActualQty, actor.UserID, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("批次完工失败: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.KindInvalidOperation, "批次 %s 已完工，实际产量不可修改", b.BatchCode)
	}

	b, err = s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s.auditRepo.LogActivity(ctx, "batch", b.ID, b.BatchCode, "complete",
		entity.BatchStatusInProgress, entity.BatchStatusCompleted,
		fmt.Sprintf("实际产量 %.4f", req.ActualQty), actor.UserID)
	s.logger.Info("batch completed",
		zap.String("batch_id", b.ID),
		zap.String("batch_code", b.BatchCode),
		zap.Float64("actual_qty", req.ActualQty))
	s.invalidateHealth(ctx)

	return b, nil
}

// StartBatch 批次开工：PLANNED → IN_PROGRESS
func (s *BatchService) StartBatch(ctx context.Context, actor Actor, batchID string) (*entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionComplete); err != nil {
		return nil, err
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case entity.BatchStatusInProgress:
		return b, nil
	case entity.BatchStatusCompleted:
		return nil, apperr.New(apperr.KindInvalidStatus, "批次 %s 已完工", b.BatchCode)
	}

	b.Status = entity.BatchStatusInProgress
	if err := s.runRepo.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("批次开工失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "batch", b.ID, b.BatchCode, "start",
		entity.BatchStatusPlanned, entity.BatchStatusInProgress, "", actor.UserID)
	s.invalidateHealth(ctx)
	return b, nil
}

// SetQCRequest 质检结论请求
type SetQCRequest struct {
	QCStatus string `json:"qc_status" binding:"required"`
	Notes    string `json:"notes"`
}

// SetQC 记录批次质检结论
func (s *BatchService) SetQC(ctx context.Context, actor Actor, batchID string, req *SetQCRequest) (*entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionQC); err != nil {
		return nil, err
	}
	if req.QCStatus != entity.QCStatusPass && req.QCStatus != entity.QCStatusFail {
		return nil, apperr.New(apperr.KindValidation, "质检结论必须是 %s 或 %s", entity.QCStatusPass, entity.QCStatusFail)
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != entity.BatchStatusCompleted {
		return nil, apperr.New(apperr.KindInvalidStatus, "批次未完工，不能记录质检结论")
	}

	from := b.QCStatus
	b.QCStatus = req.QCStatus
	if err := s.runRepo.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("更新质检结论失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "batch", b.ID, b.BatchCode, "qc", from, req.QCStatus, req.Notes, actor.UserID)
	return b, nil
}

// UploadCoA 上传批次质检报告
func (s *BatchService) UploadCoA(ctx context.Context, actor Actor, batchID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionQC); err != nil {
		return nil, err
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if s.minioClient == nil {
		return nil, apperr.New(apperr.KindInvalidOperation, "对象存储未配置，无法上传质检报告")
	}

	objectName := fmt.Sprintf("coa/%s/%s%s", b.BatchCode, uuid.New().String()[:8], filepath.Ext(fileName))
	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("上传质检报告失败: %w", err)
	}

	b.CoAObjectKey = objectName
	if err := s.runRepo.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("保存质检报告路径失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "batch", b.ID, b.BatchCode, "upload_coa", "", "", fileName, actor.UserID)
	return b, nil
}

// DownloadCoA 下载批次质检报告
func (s *BatchService) DownloadCoA(ctx context.Context, actor Actor, batchID string) (io.ReadCloser, *entity.Batch, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceBatch, auth.ActionRead); err != nil {
		return nil, nil, err
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	if b.CoAObjectKey == "" {
		return nil, nil, apperr.New(apperr.KindNotFound, "批次 %s 未上传质检报告", b.BatchCode)
	}
	if s.minioClient == nil {
		return nil, b, fmt.Errorf("storage not configured")
	}

	object, err := s.minioClient.GetObject(ctx, s.bucketName, b.CoAObjectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	return object, b, nil
}
