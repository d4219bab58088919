package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/auth"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
)

// ProductService 产品主数据服务
type ProductService struct {
	productRepo *repository.ProductRepository
	auditRepo   *repository.ActivityLogRepository
}

func NewProductService(repos *repository.Repositories) *ProductService {
	return &ProductService{
		productRepo: repos.Product,
		auditRepo:   repos.ActivityLog,
	}
}

// GetProduct 产品详情
func (s *ProductService) GetProduct(ctx context.Context, actor Actor, id string) (*entity.Product, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, err
	}
	p, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "产品不存在: %s", id)
		}
		return nil, err
	}
	return p, nil
}

// ListProducts 产品列表
func (s *ProductService) ListProducts(ctx context.Context, actor Actor, page, pageSize int, filters map[string]string) ([]entity.Product, int64, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionRead); err != nil {
		return nil, 0, err
	}
	return s.productRepo.FindAll(ctx, page, pageSize, filters)
}

// CreateProductRequest 创建产品请求
type CreateProductRequest struct {
	Code             string   `json:"code" binding:"required"`
	Name             string   `json:"name" binding:"required"`
	DefaultBatchSize *float64 `json:"default_batch_size"`
	Unit             string   `json:"unit"`
	ShelfLifeDays    int      `json:"shelf_life_days"`
	Notes            string   `json:"notes"`
}

// CreateProduct 创建产品
func (s *ProductService) CreateProduct(ctx context.Context, actor Actor, req *CreateProductRequest) (*entity.Product, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionCreate); err != nil {
		return nil, err
	}
	if req.DefaultBatchSize != nil && *req.DefaultBatchSize <= 0 {
		return nil, apperr.New(apperr.KindValidation, "默认批次大小必须大于0")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, apperr.New(apperr.KindValidation, "产品编码不能为空")
	}

	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	p := &entity.Product{
		ID:               uuid.New().String()[:32],
		Code:             code,
		Name:             req.Name,
		DefaultBatchSize: req.DefaultBatchSize,
		Unit:             unit,
		ShelfLifeDays:    req.ShelfLifeDays,
		Status:           "active",
		Notes:            req.Notes,
	}
	if err := s.productRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("创建产品失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "product", p.ID, p.Code, "create", "", "", p.Name, actor.UserID)
	return p, nil
}

// UpdateProductRequest 更新产品请求
type UpdateProductRequest struct {
	Name             *string  `json:"name"`
	DefaultBatchSize *float64 `json:"default_batch_size"`
	ShelfLifeDays    *int     `json:"shelf_life_days"`
	Status           *string  `json:"status"`
	Notes            *string  `json:"notes"`
}

// UpdateProduct 更新产品
// 默认批次大小只影响之后开工的订单，已拆分的批次不受影响。
func (s *ProductService) UpdateProduct(ctx context.Context, actor Actor, id string, req *UpdateProductRequest) (*entity.Product, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceOrder, auth.ActionCreate); err != nil {
		return nil, err
	}

	p, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "产品不存在: %s", id)
		}
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.DefaultBatchSize != nil {
		if *req.DefaultBatchSize <= 0 {
			return nil, apperr.New(apperr.KindValidation, "默认批次大小必须大于0")
		}
		p.DefaultBatchSize = req.DefaultBatchSize
	}
	if req.ShelfLifeDays != nil {
		p.ShelfLifeDays = *req.ShelfLifeDays
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}

	if err := s.productRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("更新产品失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "product", p.ID, p.Code, "update", "", "", p.Name, actor.UserID)
	return p, nil
}
