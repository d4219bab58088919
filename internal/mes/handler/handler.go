package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// Handlers MES处理器集合
type Handlers struct {
	Product   *ProductHandler
	Template  *TemplateHandler
	Order     *OrderHandler
	Step      *StepHandler
	Batch     *BatchHandler
	Issuance  *IssuanceHandler
	Dashboard *DashboardHandler
}

// NewHandlers 创建MES处理器集合
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Product:   NewProductHandler(services.Product),
		Template:  NewTemplateHandler(services.Template),
		Order:     NewOrderHandler(services.Order),
		Step:      NewStepHandler(services.Step),
		Batch:     NewBatchHandler(services.Batch),
		Issuance:  NewIssuanceHandler(services.Issuance),
		Dashboard: NewDashboardHandler(services.Dashboard, services.Health),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// apperr Kind → 响应码（前三位是HTTP状态码）
var kindCodes = map[apperr.Kind]int{
	apperr.KindUnauthorized:     40100,
	apperr.KindForbidden:        40300,
	apperr.KindNotFound:         40400,
	apperr.KindValidation:       40000,
	apperr.KindConflict:         40900,
	apperr.KindInvalidStatus:    40901,
	apperr.KindInvalidOperation: 42200,
	apperr.KindShortage:         40910,
}

// HandleError 统一错误出口：业务错误按类别映射，其余一律500
func HandleError(c *gin.Context, err error) {
	if ae, ok := apperr.AsError(err); ok {
		code, known := kindCodes[ae.Kind]
		if !known {
			code = 50000
		}
		ErrorWithData(c, code, ae.Message, ae.Details)
		return
	}
	InternalError(c, err.Error())
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetRole(c *gin.Context) string {
	role, _ := c.Get("role")
	if r, ok := role.(string); ok {
		return r
	}
	return ""
}

// GetActor 从认证中间件注入的上下文组装请求身份
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: GetUserID(c),
		Role:   GetRole(c),
	}
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
