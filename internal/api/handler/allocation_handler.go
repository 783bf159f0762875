package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"classpilot/backend/internal/dto"
	"classpilot/backend/internal/service"
	pkgerrors "classpilot/backend/pkg/errors"
	"classpilot/backend/pkg/response"
)

// AllocationHandler 分配引擎 HTTP 处理器
type AllocationHandler struct {
	allocSvc   service.AllocationService
	confirmSvc service.ConfirmService
}

// NewAllocationHandler 创建 AllocationHandler
func NewAllocationHandler(allocSvc service.AllocationService, confirmSvc service.ConfirmService) *AllocationHandler {
	return &AllocationHandler{allocSvc: allocSvc, confirmSvc: confirmSvc}
}

// CreateRun 创建并执行分配批次
// POST /api/v1/allocation/runs
func (h *AllocationHandler) CreateRun(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateAllocationRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.allocSvc.CreateRun(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Created(c, result)
}

// ListRuns 批次列表
// GET /api/v1/allocation/runs
func (h *AllocationHandler) ListRuns(c *gin.Context) {
	result, err := h.allocSvc.ListRuns(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// GetRun 批次详情
// GET /api/v1/allocation/runs/:id
func (h *AllocationHandler) GetRun(c *gin.Context) {
	result, err := h.allocSvc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// ListCandidateGroups 批次的候选组列表
// GET /api/v1/allocation/runs/:id/candidate-groups
func (h *AllocationHandler) ListCandidateGroups(c *gin.Context) {
	result, err := h.allocSvc.ListCandidateGroups(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// GetCandidateGroup 候选组详情
// GET /api/v1/allocation/candidate-groups/:id
func (h *AllocationHandler) GetCandidateGroup(c *gin.Context) {
	result, err := h.allocSvc.GetCandidateGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// UpdateCandidateStatus 操作员暂存/否决候选组
// PUT /api/v1/allocation/candidate-groups/:id/status
func (h *AllocationHandler) UpdateCandidateStatus(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateCandidateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.allocSvc.UpdateCandidateStatus(c.Request.Context(), c.Param("id"), &req, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// ConfirmCandidateGroup 确认候选组并落班
// POST /api/v1/allocation/candidate-groups/:id/confirm
func (h *AllocationHandler) ConfirmCandidateGroup(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ConfirmCandidateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.confirmSvc.Confirm(c.Request.Context(), c.Param("id"), &req, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.OK(c, result)
}

// handleError 分配模块错误 → HTTP 响应映射
func (h *AllocationHandler) handleError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		response.NotFound(c, 17001, service.ErrRunNotFound.Error())
	case errors.Is(err, service.ErrCandidateNotFound):
		response.NotFound(c, 17002, service.ErrCandidateNotFound.Error())
	case errors.Is(err, service.ErrCourseLevelNotFound):
		response.BadRequest(c, 17003, err.Error())
	case errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrInvalidCapacityRange):
		response.BadRequest(c, 17004, err.Error())
	case errors.Is(err, service.ErrCandidateLocked):
		response.BadRequest(c, 17005, service.ErrCandidateLocked.Error())
	case errors.Is(err, service.ErrReasonRequired),
		errors.Is(err, service.ErrMinCapacityNotMet),
		errors.Is(err, service.ErrInstructorMissing),
		errors.Is(err, service.ErrRoomMissing),
		errors.Is(err, service.ErrNotProfitable),
		errors.Is(err, service.ErrOverrideReason),
		errors.Is(err, service.ErrInvalidRoom):
		response.BadRequest(c, 17006, err.Error())
	case errors.As(err, &conflict):
		response.Conflict(c, 17007, conflict.Error())
	case errors.Is(err, pkgerrors.ErrBookingExcluded):
		response.Conflict(c, 17008, pkgerrors.ErrBookingExcluded.Error())
	case errors.Is(err, service.ErrConfirmInProgress):
		response.Conflict(c, 17009, service.ErrConfirmInProgress.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 17010, pkgerrors.ErrOptimisticLock.Error())
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/allocation_handler.go
