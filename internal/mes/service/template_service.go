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

// TemplateService 产品工步模板服务
// 模板只在开工那一刻被读取并克隆；之后的增删改对在制运行没有任何影响。
type TemplateService struct {
	tplRepo     *repository.TemplateRepository
	productRepo *repository.ProductRepository
	auditRepo   *repository.ActivityLogRepository
}

func NewTemplateService(repos *repository.Repositories) *TemplateService {
	return &TemplateService{
		tplRepo:     repos.Template,
		productRepo: repos.Product,
		auditRepo:   repos.ActivityLog,
	}
}

// ListTemplates 查询产品工步模板
func (s *TemplateService) ListTemplates(ctx context.Context, actor Actor, productID string) ([]entity.ProductStepTemplate, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceTemplate, auth.ActionRead); err != nil {
		return nil, err
	}
	return s.tplRepo.FindByProduct(ctx, productID)
}

// CreateTemplateRequest 创建工步模板请求
type CreateTemplateRequest struct {
	Key       string `json:"key" binding:"required"`
	Label     string `json:"label" binding:"required"`
	SortOrder int    `json:"sort_order"`
	Required  bool   `json:"required"`
}

// CreateTemplate 为产品追加工步模板
// key 在产品内唯一，作为模板与运行工步之间的稳定标识。
func (s *TemplateService) CreateTemplate(ctx context.Context, actor Actor, productID string, req *CreateTemplateRequest) (*entity.ProductStepTemplate, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceTemplate, auth.ActionCreate); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, apperr.New(apperr.KindValidation, "工步key不能为空")
	}

	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "产品不存在: %s", productID)
		}
		return nil, err
	}

	if _, err := s.tplRepo.FindByProductAndKey(ctx, productID, key); err == nil {
		return nil, apperr.New(apperr.KindConflict, "工步key %s 在该产品下已存在", key)
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	tpl := &entity.ProductStepTemplate{
		ID:        uuid.New().String()[:32],
		ProductID: productID,
		Key:       key,
		Label:     req.Label,
		SortOrder: req.SortOrder,
		Required:  req.Required,
	}
	if err := s.tplRepo.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("创建工步模板失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "template", tpl.ID, key, "create", "", "", req.Label, actor.UserID)
	return tpl, nil
}

// UpdateTemplateRequest 更新工步模板请求
type UpdateTemplateRequest struct {
	Label     *string `json:"label"`
	SortOrder *int    `json:"sort_order"`
	Required  *bool   `json:"required"`
}

// UpdateTemplate 更新工步模板
func (s *TemplateService) UpdateTemplate(ctx context.Context, actor Actor, id string, req *UpdateTemplateRequest) (*entity.ProductStepTemplate, error) {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceTemplate, auth.ActionEdit); err != nil {
		return nil, err
	}

	tpl, err := s.tplRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "工步模板不存在: %s", id)
		}
		return nil, err
	}

	if req.Label != nil {
		tpl.Label = *req.Label
	}
	if req.SortOrder != nil {
		tpl.SortOrder = *req.SortOrder
	}
	if req.Required != nil {
		tpl.Required = *req.Required
	}

	if err := s.tplRepo.Update(ctx, tpl); err != nil {
		return nil, fmt.Errorf("更新工步模板失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "template", tpl.ID, tpl.Key, "update", "", "", tpl.Label, actor.UserID)
	return tpl, nil
}

// DeleteTemplate 删除工步模板
func (s *TemplateService) DeleteTemplate(ctx context.Context, actor Actor, id string) error {
	if err := auth.Check(actor.UserID, actor.Role, auth.ResourceTemplate, auth.ActionDelete); err != nil {
		return err
	}

	tpl, err := s.tplRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.New(apperr.KindNotFound, "工步模板不存在: %s", id)
		}
		return err
	}

	if err := s.tplRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除工步模板失败: %w", err)
	}

	s.auditRepo.LogActivity(ctx, "template", tpl.ID, tpl.Key, "delete", "", "", tpl.Label, actor.UserID)
	return nil
}
