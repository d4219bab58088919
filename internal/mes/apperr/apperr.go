// Package apperr 定义业务错误类别。
// 服务层返回带类别的错误，handler 统一映射为 HTTP 状态码；
// 基础设施错误（数据库等）不归类，按内部错误处理。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 业务错误类别
type Kind string

const (
	KindUnauthorized     Kind = "UNAUTHORIZED"      // 无身份
	KindForbidden        Kind = "FORBIDDEN"         // 有身份但角色不足
	KindNotFound         Kind = "NOT_FOUND"         // 实体不存在
	KindInvalidStatus    Kind = "INVALID_STATUS"    // 当前生命周期状态不允许该操作
	KindInvalidOperation Kind = "INVALID_OPERATION" // 非状态原因的非法操作
	KindConflict         Kind = "CONFLICT"          // 并发争抢冲突
	KindValidation       Kind = "VALIDATION_ERROR"  // 输入不合法
	KindShortage         Kind = "MATERIAL_SHORTAGE" // 物料库存不足
)

// Error 业务错误
type Error struct {
	Kind    Kind        `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New 创建业务错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails 附加结构化详情
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// KindOf 提取错误类别，非业务错误返回空串
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// AsError 提取业务错误
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ShortLine 库存不足明细行
type ShortLine struct {
	MaterialID   string  `json:"material_id"`
	MaterialCode string  `json:"material_code"`
	LocationID   string  `json:"location_id"`
	Requested    float64 `json:"requested"`
	Available    float64 `json:"available"`
}

// Shortage 创建库存不足错误，details 携带全部缺料行
func Shortage(lines []ShortLine) *Error {
	return &Error{
		Kind:    KindShortage,
		Message: fmt.Sprintf("库存不足: %d 行物料可用量不够", len(lines)),
		Details: lines,
	}
}
