// Package auth 提供显式的 (资源, 动作) → 允许角色 权限表。
// 角色校验只在服务入口做一次，迁移逻辑内部不再比较角色字符串。
package auth

import "github.com/bitfantasy/nimo-mes/internal/mes/apperr"

// 角色
const (
	RoleAdmin      = "ADMIN"
	RoleProduction = "PRODUCTION"
	RoleOperator   = "OPERATOR"
	RoleViewer     = "VIEWER"
)

// 资源
const (
	ResourceOrder     = "order"
	ResourceStep      = "step"
	ResourceBatch     = "batch"
	ResourceTemplate  = "template"
	ResourceInventory = "inventory"
	ResourceDashboard = "dashboard"
)

// 动作
const (
	ActionCreate   = "create"
	ActionRead     = "read"
	ActionStart    = "start"
	ActionBlock    = "block"
	ActionArchive  = "archive"
	ActionComplete = "complete"
	ActionClaim    = "claim"
	ActionSkip     = "skip"
	ActionAssign   = "assign"
	ActionEdit     = "edit"
	ActionDelete   = "delete"
	ActionIssue    = "issue"
	ActionQC       = "qc"
)

type permKey struct {
	resource string
	action   string
}

// permissionTable ADMIN 对所有动作放行，表中无需列出。
var permissionTable = map[permKey][]string{
	{ResourceOrder, ActionCreate}:   {RoleProduction},
	{ResourceOrder, ActionRead}:     {RoleProduction, RoleOperator, RoleViewer},
	{ResourceOrder, ActionStart}:    {RoleProduction},
	{ResourceOrder, ActionBlock}:    {RoleProduction},
	{ResourceOrder, ActionArchive}:  {RoleProduction},
	{ResourceOrder, ActionComplete}: {RoleProduction},

	{ResourceStep, ActionRead}:     {RoleProduction, RoleOperator, RoleViewer},
	{ResourceStep, ActionClaim}:    {RoleProduction, RoleOperator},
	{ResourceStep, ActionStart}:    {RoleProduction, RoleOperator},
	{ResourceStep, ActionComplete}: {RoleProduction, RoleOperator},
	{ResourceStep, ActionSkip}:     {RoleProduction, RoleOperator},
	{ResourceStep, ActionAssign}:   {}, // 仅ADMIN
	{ResourceStep, ActionCreate}:   {RoleProduction},
	{ResourceStep, ActionEdit}:     {RoleProduction},
	{ResourceStep, ActionDelete}:   {RoleProduction},

	{ResourceBatch, ActionRead}:     {RoleProduction, RoleOperator, RoleViewer},
	{ResourceBatch, ActionComplete}: {RoleProduction},
	{ResourceBatch, ActionQC}:       {RoleProduction},

	{ResourceTemplate, ActionRead}:   {RoleProduction, RoleOperator, RoleViewer},
	{ResourceTemplate, ActionCreate}: {RoleProduction},
	{ResourceTemplate, ActionEdit}:   {RoleProduction},
	{ResourceTemplate, ActionDelete}: {RoleProduction},

	{ResourceInventory, ActionRead}:  {RoleProduction, RoleOperator, RoleViewer},
	{ResourceInventory, ActionIssue}: {RoleProduction, RoleOperator},

	{ResourceDashboard, ActionRead}: {RoleProduction, RoleOperator, RoleViewer},
}

// Allowed 判断角色是否允许对资源执行动作
func Allowed(role, resource, action string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, r := range permissionTable[permKey{resource, action}] {
		if r == role {
			return true
		}
	}
	return false
}

// Check 权限校验：无身份返回 UNAUTHORIZED，角色不足返回 FORBIDDEN
func Check(userID, role, resource, action string) error {
	if userID == "" {
		return apperr.New(apperr.KindUnauthorized, "未提供身份")
	}
	if !Allowed(role, resource, action) {
		return apperr.New(apperr.KindForbidden, "角色 %s 无权执行 %s.%s", role, resource, action)
	}
	return nil
}
