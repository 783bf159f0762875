package model

import (
	"time"

	"gorm.io/gorm"
)

// 分配批次状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// 候选组状态（confirmed 为终态，锁定后不再变更）
const (
	CandidateStatusDraft     = "draft"
	CandidateStatusBlocked   = "blocked"
	CandidateStatusHeld      = "held"
	CandidateStatusRejected  = "rejected"
	CandidateStatusConfirmed = "confirmed"
)

// 候选组阻塞原因（机器可读代码，解释详情见 explanation）
const (
	BlockReasonNoAvailability = "no_student_availability"
	BlockReasonMinCapacity    = "min_capacity"
	BlockReasonNoInstructor   = "no_instructor"
	BlockReasonNoRoom         = "no_room"
	BlockReasonNotProfitable  = "not_profitable"
)

// AllocationRun 分配批次表 — 对应 allocation_runs
// 一次批次在单个请求内同步跑完整条流水线
type AllocationRun struct {
	RunID      string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"run_id"`
	Status     string         `gorm:"type:varchar(20);not null;default:'running'"    json:"status"` // running | completed | failed
	FromDate   time.Time      `gorm:"type:date;not null"                             json:"from_date"`
	ToDate     time.Time      `gorm:"type:date;not null"                             json:"to_date"`
	Notes      string         `gorm:"type:varchar(500)"                              json:"notes,omitempty"`
	Params     JSONMap        `gorm:"type:jsonb"                                     json:"params,omitempty"`
	Error      string         `gorm:"type:text"                                      json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	CreatedBy  *string        `gorm:"type:uuid"                                      json:"created_by,omitempty"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`

	// 关联
	Demands []CourseDemand `gorm:"foreignKey:RunID" json:"demands,omitempty"`
}

// TableName 指定表名
func (AllocationRun) TableName() string { return "allocation_runs" }

// CourseDemand 开班需求表 — 对应 course_demands
// 批次创建时写入，此后不可变
type CourseDemand struct {
	DemandID            string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"demand_id"`
	RunID               string          `gorm:"type:uuid;not null"                             json:"run_id"`
	CourseLevelID       string          `gorm:"type:uuid;not null"                             json:"course_level_id"`
	StudentIDs          StringArray     `gorm:"type:text[];not null"                           json:"student_ids"`
	StudentAvailability AvailabilityMap `gorm:"type:jsonb"                                     json:"student_availability,omitempty"`
	RequiredSkills      StringArray     `gorm:"type:text[]"                                    json:"required_skills,omitempty"`
	MinCapacity         int             `gorm:"type:smallint;not null"                         json:"min_capacity"`
	MaxCapacity         int             `gorm:"type:smallint;not null"                         json:"max_capacity"`
	PlannedSessions     int             `gorm:"type:smallint;not null"                         json:"planned_sessions"`
	SessionDurationMins int             `gorm:"type:smallint;not null"                         json:"session_duration_mins"`
	PricePerStudent     float64         `gorm:"type:numeric(12,2);not null"                    json:"price_per_student"`
	PreferredLocation   *string         `gorm:"type:varchar(50)"                               json:"preferred_location,omitempty"`
	CreatedAt           time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	DeletedAt           gorm.DeletedAt  `gorm:"index"                                          json:"deleted_at,omitempty"`

	// 关联
	CourseLevel *CourseLevel `gorm:"foreignKey:CourseLevelID;references:CourseLevelID" json:"course_level,omitempty"`
}

// TableName 指定表名
func (CourseDemand) TableName() string { return "course_demands" }

// TimeCluster 时段聚类表 — 对应 time_clusters
// 每个需求中按精确 (星期, 起, 止) 键发现的聚类，写入一次后只读（可解释性记录）
type TimeCluster struct {
	ClusterID    string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"cluster_id"`
	RunID        string         `gorm:"type:uuid;not null"                             json:"run_id"`
	DemandID     string         `gorm:"type:uuid;not null"                             json:"demand_id"`
	DayOfWeek    int            `gorm:"type:smallint;not null"                         json:"day_of_week"`
	StartTime    string         `gorm:"type:varchar(5);not null"                       json:"start_time"`
	EndTime      string         `gorm:"type:varchar(5);not null"                       json:"end_time"`
	StudentCount int            `gorm:"type:smallint;not null"                         json:"student_count"`
	StudentIDs   StringArray    `gorm:"type:text[];not null"                           json:"student_ids"`
	Score        float64        `gorm:"type:numeric(10,2);not null;default:0"          json:"score"`
	Explanation  JSONMap        `gorm:"type:jsonb"                                     json:"explanation,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (TimeCluster) TableName() string { return "time_clusters" }

// CandidateGroup 候选班组表 — 对应 candidate_groups
// 由批次编排器创建；之后仅被操作员状态动作修改；confirmed 后永久锁定
type CandidateGroup struct {
	CandidateGroupID string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"candidate_group_id"`
	RunID            string      `gorm:"type:uuid;not null"                             json:"run_id"`
	DemandID         string      `gorm:"type:uuid;not null"                             json:"demand_id"`
	Name             string      `gorm:"type:varchar(50);not null"                      json:"name"`
	Status           string      `gorm:"type:varchar(20);not null;default:'draft'"      json:"status"`
	BlockReason      *string     `gorm:"type:varchar(50)"                               json:"block_reason,omitempty"`
	CourseLevelID    string      `gorm:"type:uuid;not null"                             json:"course_level_id"`
	DayOfWeek        int         `gorm:"type:smallint;not null"                         json:"day_of_week"`
	StartTime        string      `gorm:"type:varchar(5);not null"                       json:"start_time"`
	EndTime          string      `gorm:"type:varchar(5);not null"                       json:"end_time"`
	StartDate        time.Time   `gorm:"type:date;not null"                             json:"start_date"`
	EndDate          *time.Time  `gorm:"type:date"                                      json:"end_date,omitempty"`
	InstructorID     *string     `gorm:"type:uuid"                                      json:"instructor_id,omitempty"`
	RoomID           *string     `gorm:"type:uuid"                                      json:"room_id,omitempty"`
	StudentCount     int         `gorm:"type:smallint;not null"                         json:"student_count"`
	StudentIDs       StringArray `gorm:"type:text[];not null"                           json:"student_ids"`
	MinCapacity      int         `gorm:"type:smallint;not null"                         json:"min_capacity"`
	MaxCapacity      int         `gorm:"type:smallint;not null"                         json:"max_capacity"`
	ExpectedRevenue  float64     `gorm:"type:numeric(12,2);not null;default:0"          json:"expected_revenue"`
	ExpectedCost     float64     `gorm:"type:numeric(12,2);not null;default:0"          json:"expected_cost"`
	ExpectedMargin   float64     `gorm:"type:numeric(12,2);not null;default:0"          json:"expected_margin"`
	Currency         string      `gorm:"type:varchar(10);not null;default:'EGP'"        json:"currency"`
	Explanation      JSONMap     `gorm:"type:jsonb"                                     json:"explanation,omitempty"`
	LockedAt         *time.Time  `json:"locked_at,omitempty"`
	LockedByID       *string     `gorm:"type:uuid"                                      json:"locked_by_id,omitempty"`
	ConfirmedGroupID *string     `gorm:"type:uuid"                                      json:"confirmed_group_id,omitempty"`
	ConfirmedClassID *string     `gorm:"type:uuid"                                      json:"confirmed_class_id,omitempty"`
	VersionedModel

	// 关联
	CourseLevel *CourseLevel `gorm:"foreignKey:CourseLevelID;references:CourseLevelID" json:"course_level,omitempty"`
	Instructor  *Instructor  `gorm:"foreignKey:InstructorID;references:InstructorID"   json:"instructor,omitempty"`
	Room        *Room        `gorm:"foreignKey:RoomID;references:RoomID"               json:"room,omitempty"`
}

// TableName 指定表名
func (CandidateGroup) TableName() string { return "candidate_groups" }
