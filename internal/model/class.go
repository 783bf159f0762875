package model

import "time"

// 报读状态
const (
	EnrollmentStatusActive = "active"
)

// Class 班级表 — 对应 classes
// 真实可排课资源预订：教师 + 教室 + 星期/时间 + 日期范围。
// 表上的两条 EXCLUDE 约束保证同一教师/教室不会被重叠预订。
type Class struct {
	ClassID         string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"class_id"`
	Name            string     `gorm:"type:varchar(200);not null"                     json:"name"`
	Code            string     `gorm:"type:varchar(50)"                               json:"code,omitempty"`
	CourseLevelID   string     `gorm:"type:uuid;not null"                             json:"course_level_id"`
	LevelNumber     int        `gorm:"type:smallint;not null;default:1"               json:"level_number"`
	InstructorID    *string    `gorm:"type:uuid"                                      json:"instructor_id,omitempty"`
	RoomID          *string    `gorm:"type:uuid"                                      json:"room_id,omitempty"`
	Location        string     `gorm:"type:varchar(50)"                               json:"location,omitempty"`
	LocationName    string     `gorm:"type:varchar(100)"                              json:"location_name,omitempty"`
	DayOfWeek       int        `gorm:"type:smallint;not null"                         json:"day_of_week"`
	StartTime       string     `gorm:"type:varchar(5);not null"                       json:"start_time"`
	EndTime         string     `gorm:"type:varchar(5);not null"                       json:"end_time"`
	StartDate       time.Time  `gorm:"type:date;not null"                             json:"start_date"`
	EndDate         *time.Time `gorm:"type:date"                                      json:"end_date,omitempty"` // NULL 表示长期班
	Capacity        int        `gorm:"type:smallint;not null"                         json:"capacity"`
	MinCapacity     int        `gorm:"type:smallint;not null"                         json:"min_capacity"`
	MaxCapacity     int        `gorm:"type:smallint;not null"                         json:"max_capacity"`
	PlannedSessions *int       `gorm:"type:smallint"                                  json:"planned_sessions,omitempty"`
	Price           *float64   `gorm:"type:numeric(12,2)"                             json:"price,omitempty"`
	VersionedModel

	// 关联
	CourseLevel *CourseLevel `gorm:"foreignKey:CourseLevelID;references:CourseLevelID" json:"course_level,omitempty"`
	Instructor  *Instructor  `gorm:"foreignKey:InstructorID;references:InstructorID"   json:"instructor,omitempty"`
	Room        *Room        `gorm:"foreignKey:RoomID;references:RoomID"               json:"room,omitempty"`
}

// TableName 指定表名
func (Class) TableName() string { return "classes" }

// Group 学员组表 — 对应 groups（花名册容器，挂接到默认班级）
type Group struct {
	GroupID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"group_id"`
	Name           string    `gorm:"type:varchar(100);not null"                     json:"name"`
	CourseLevelID  string    `gorm:"type:uuid;not null"                             json:"course_level_id"`
	DefaultClassID *string   `gorm:"type:uuid"                                      json:"default_class_id,omitempty"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	CreatedBy      *string   `gorm:"type:uuid"                                      json:"created_by,omitempty"`
}

// TableName 指定表名
func (Group) TableName() string { return "groups" }

// StudentEnrollment 学员报读表 — 对应 student_enrollments
// 确认提交时把 active 报读重新指派到新建的学员组/班级
type StudentEnrollment struct {
	EnrollmentID  string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"enrollment_id"`
	StudentID     string  `gorm:"type:uuid;not null"                             json:"student_id"`
	CourseLevelID string  `gorm:"type:uuid;not null"                             json:"course_level_id"`
	GroupID       *string `gorm:"type:uuid"                                      json:"group_id,omitempty"`
	ClassID       *string `gorm:"type:uuid"                                      json:"class_id,omitempty"`
	Status        string  `gorm:"type:varchar(20);not null;default:'active'"     json:"status"`
	BaseModel
}

// TableName 指定表名
func (StudentEnrollment) TableName() string { return "student_enrollments" }
