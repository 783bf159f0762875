package dto

import (
	"time"

	"classpilot/backend/internal/model"
)

// ── 请求 ──

// CreateAllocationRunRequest 创建分配批次请求
// 日期为 YYYY-MM-DD 文本，详细校验在 Service 层完成
type CreateAllocationRunRequest struct {
	FromDate string              `json:"from_date" binding:"required"`
	ToDate   string              `json:"to_date"   binding:"required"`
	Notes    string              `json:"notes"     binding:"max=500"`
	Params   *RunParams          `json:"params"`
	Demands  []CourseDemandInput `json:"demands"   binding:"required,min=1,dive"`
}

// RunParams 批次级参数，覆盖全局默认
type RunParams struct {
	MinMarginPct *float64 `json:"min_margin_pct"`
}

// CourseDemandInput 单条开班需求
// StudentAvailability 只接受 studentId → 每周时段列表 这一种形态
type CourseDemandInput struct {
	CourseLevelID       string                        `json:"course_level_id"      binding:"required,uuid"`
	StudentIDs          []string                      `json:"student_ids"          binding:"required,min=1,dive,uuid"`
	StudentAvailability map[string][]model.WeeklySlot `json:"student_availability"`
	RequiredSkills      []string                      `json:"required_skills"`
	MinCapacity         int                           `json:"min_capacity"          binding:"required,min=1"`
	MaxCapacity         int                           `json:"max_capacity"          binding:"required,min=1"`
	PlannedSessions     int                           `json:"planned_sessions"      binding:"required,min=1"`
	SessionDurationMins int                           `json:"session_duration_mins" binding:"required,min=15"`
	PricePerStudent     float64                       `json:"price_per_student"     binding:"min=0"`
	PreferredLocation   *string                       `json:"preferred_location"`
}

// UpdateCandidateStatusRequest 操作员暂存/否决候选组
type UpdateCandidateStatusRequest struct {
	Action string `json:"action" binding:"required,oneof=hold reject"`
	Notes  string `json:"notes"  binding:"required,max=500"`
}

// ConfirmCandidateGroupRequest 确认候选组并落班请求
// InstructorID / RoomID 可覆盖引擎的选择；覆盖时 Reason 不得少于 5 字符
type ConfirmCandidateGroupRequest struct {
	Reason       string  `json:"reason" binding:"required,max=500"`
	InstructorID *string `json:"instructor_id" binding:"omitempty,uuid"`
	RoomID       *string `json:"room_id"       binding:"omitempty,uuid"`
}

// ── 响应 ──

// AllocationRunResponse 分配批次摘要
type AllocationRunResponse struct {
	RunID         string     `json:"run_id"`
	Status        string     `json:"status"`
	FromDate      string     `json:"from_date"`
	ToDate        string     `json:"to_date"`
	Notes         string     `json:"notes,omitempty"`
	Error         string     `json:"error,omitempty"`
	DemandCount   int        `json:"demand_count"`
	ClusterCount  int64      `json:"cluster_count"`
	GroupCount    int64      `json:"group_count"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CandidateGroupResponse 候选组视图
type CandidateGroupResponse struct {
	CandidateGroupID string        `json:"candidate_group_id"`
	RunID            string        `json:"run_id"`
	DemandID         string        `json:"demand_id"`
	Name             string        `json:"name"`
	Status           string        `json:"status"`
	BlockReason      *string       `json:"block_reason,omitempty"`
	CourseName       string        `json:"course_name,omitempty"`
	LevelName        string        `json:"level_name,omitempty"`
	DayOfWeek        int           `json:"day_of_week"`
	StartTime        string        `json:"start_time"`
	EndTime          string        `json:"end_time"`
	StartDate        string        `json:"start_date"`
	EndDate          *string       `json:"end_date,omitempty"`
	InstructorID     *string       `json:"instructor_id,omitempty"`
	InstructorName   string        `json:"instructor_name,omitempty"`
	RoomID           *string       `json:"room_id,omitempty"`
	RoomName         string        `json:"room_name,omitempty"`
	StudentCount     int           `json:"student_count"`
	StudentIDs       []string      `json:"student_ids"`
	MinCapacity      int           `json:"min_capacity"`
	MaxCapacity      int           `json:"max_capacity"`
	ExpectedRevenue  float64       `json:"expected_revenue"`
	ExpectedCost     float64       `json:"expected_cost"`
	ExpectedMargin   float64       `json:"expected_margin"`
	MarginPct        float64       `json:"margin_pct"` // 收入为 0 时为 -1 哨兵值
	Currency         string        `json:"currency"`
	Explanation      model.JSONMap `json:"explanation,omitempty"`
	ConfirmedGroupID *string       `json:"confirmed_group_id,omitempty"`
	ConfirmedClassID *string       `json:"confirmed_class_id,omitempty"`
	Version          int           `json:"version"`
}

// ConfirmResultResponse 确认结果：新建的班级与学员组
type ConfirmResultResponse struct {
	CandidateGroupID  string `json:"candidate_group_id"`
	Status            string `json:"status"`
	ClassID           string `json:"class_id"`
	GroupID           string `json:"group_id"`
	ReassignedCount   int64  `json:"reassigned_count"`
	AlreadyConfirmed  bool   `json:"already_confirmed"` // 幂等短路：此前已确认
}

// ── 模型 → 响应 转换 ──

const dateLayout = "2006-01-02"

// NewAllocationRunResponse 由批次模型构建摘要响应
func NewAllocationRunResponse(run *model.AllocationRun, clusters, groups int64) *AllocationRunResponse {
	return &AllocationRunResponse{
		RunID:        run.RunID,
		Status:       run.Status,
		FromDate:     run.FromDate.Format(dateLayout),
		ToDate:       run.ToDate.Format(dateLayout),
		Notes:        run.Notes,
		Error:        run.Error,
		DemandCount:  len(run.Demands),
		ClusterCount: clusters,
		GroupCount:   groups,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		CreatedAt:    run.CreatedAt,
	}
}

// NewCandidateGroupResponse 由候选组模型构建视图
func NewCandidateGroupResponse(g *model.CandidateGroup) *CandidateGroupResponse {
	resp := &CandidateGroupResponse{
		CandidateGroupID: g.CandidateGroupID,
		RunID:            g.RunID,
		DemandID:         g.DemandID,
		Name:             g.Name,
		Status:           g.Status,
		BlockReason:      g.BlockReason,
		DayOfWeek:        g.DayOfWeek,
		StartTime:        g.StartTime,
		EndTime:          g.EndTime,
		StartDate:        g.StartDate.Format(dateLayout),
		InstructorID:     g.InstructorID,
		RoomID:           g.RoomID,
		StudentCount:     g.StudentCount,
		StudentIDs:       g.StudentIDs,
		MinCapacity:      g.MinCapacity,
		MaxCapacity:      g.MaxCapacity,
		ExpectedRevenue:  g.ExpectedRevenue,
		ExpectedCost:     g.ExpectedCost,
		ExpectedMargin:   g.ExpectedMargin,
		MarginPct:        marginPct(g.ExpectedRevenue, g.ExpectedMargin),
		Currency:         g.Currency,
		Explanation:      g.Explanation,
		ConfirmedGroupID: g.ConfirmedGroupID,
		ConfirmedClassID: g.ConfirmedClassID,
		Version:          g.Version,
	}
	if g.EndDate != nil {
		ed := g.EndDate.Format(dateLayout)
		resp.EndDate = &ed
	}
	if g.CourseLevel != nil {
		resp.LevelName = g.CourseLevel.Name
		if g.CourseLevel.Course != nil {
			resp.CourseName = g.CourseLevel.Course.Name
		}
	}
	if g.Instructor != nil {
		resp.InstructorName = g.Instructor.Name
	}
	if g.Room != nil {
		resp.RoomName = g.Room.Name
	}
	return resp
}

// marginPct 利润率；收入为 0 时无法定义，返回 -1 哨兵值
func marginPct(revenue, margin float64) float64 {
	if revenue <= 0 {
		return -1
	}
	return margin / revenue
}

// [自证通过] internal/dto/allocation.go
