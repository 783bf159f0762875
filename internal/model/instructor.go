package model

import (
	"time"

	"gorm.io/gorm"
)

// 教师成本模型类型
const (
	CostTypeHourly     = "hourly"
	CostTypePerSession = "per_session"
	CostTypeMonthly    = "monthly"
)

// Instructor 教师表 — 对应 instructors（外部目录，本引擎只读）
type Instructor struct {
	InstructorID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"instructor_id"`
	Name         string         `gorm:"type:varchar(200);not null"                     json:"name"`
	Status       string         `gorm:"type:varchar(20);not null;default:'active'"     json:"status"` // active | inactive
	CostType     *string        `gorm:"type:varchar(20)"                               json:"cost_type,omitempty"`   // 旧版固定成本类型（回退用）
	CostAmount   *float64       `gorm:"type:numeric(12,2)"                             json:"cost_amount,omitempty"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`

	// 关联
	Skills       []InstructorSkill        `gorm:"foreignKey:InstructorID" json:"skills,omitempty"`
	Availability []InstructorAvailability `gorm:"foreignKey:InstructorID" json:"availability,omitempty"`
	CostModels   []InstructorCostModel    `gorm:"foreignKey:InstructorID" json:"cost_models,omitempty"`
}

// TableName 指定表名
func (Instructor) TableName() string { return "instructors" }

// InstructorSkill 教师技能表 — 对应 instructor_skills
type InstructorSkill struct {
	SkillID      string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"skill_id"`
	InstructorID string         `gorm:"type:uuid;not null"                             json:"instructor_id"`
	Name         string         `gorm:"type:varchar(100);not null"                     json:"name"`
	DeletedAt    gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (InstructorSkill) TableName() string { return "instructor_skills" }

// InstructorAvailability 教师每周可用窗口表 — 对应 instructor_availabilities
// 生效日期范围为空表示长期有效
type InstructorAvailability struct {
	AvailabilityID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"availability_id"`
	InstructorID   string         `gorm:"type:uuid;not null"                             json:"instructor_id"`
	DayOfWeek      int            `gorm:"type:smallint;not null"                         json:"day_of_week"` // 0-6
	StartTime      string         `gorm:"type:varchar(5);not null"                       json:"start_time"`  // HH:mm
	EndTime        string         `gorm:"type:varchar(5);not null"                       json:"end_time"`
	EffectiveFrom  *time.Time     `gorm:"type:date"                                      json:"effective_from,omitempty"`
	EffectiveTo    *time.Time     `gorm:"type:date"                                      json:"effective_to,omitempty"`
	DeletedAt      gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (InstructorAvailability) TableName() string { return "instructor_availabilities" }

// InstructorCostModel 教师成本模型表 — 对应 instructor_cost_models
// 成本估算按参考日期选择生效模型，生效期重叠时取最近生效者
type InstructorCostModel struct {
	CostModelID   string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"cost_model_id"`
	InstructorID  string         `gorm:"type:uuid;not null"                             json:"instructor_id"`
	Type          string         `gorm:"type:varchar(20);not null"                      json:"type"` // hourly | per_session | monthly
	Amount        float64        `gorm:"type:numeric(12,2);not null"                    json:"amount"`
	EffectiveFrom *time.Time     `gorm:"type:date"                                      json:"effective_from,omitempty"`
	EffectiveTo   *time.Time     `gorm:"type:date"                                      json:"effective_to,omitempty"`
	DeletedAt     gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (InstructorCostModel) TableName() string { return "instructor_cost_models" }

// ClassSession 班级节次表 — 对应 class_sessions（教师利用率统计来源）
type ClassSession struct {
	SessionID     string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"session_id"`
	ClassID       *string        `gorm:"type:uuid"                                      json:"class_id,omitempty"`
	InstructorID  string         `gorm:"type:uuid;not null"                             json:"instructor_id"`
	ScheduledDate time.Time      `gorm:"type:date;not null"                             json:"scheduled_date"`
	StartTime     time.Time      `gorm:"not null"                                       json:"start_time"`
	EndTime       time.Time      `gorm:"not null"                                       json:"end_time"`
	DeletedAt     gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (ClassSession) TableName() string { return "class_sessions" }
