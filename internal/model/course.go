package model

import "gorm.io/gorm"

// Course 课程表 — 对应 courses
type Course struct {
	CourseID  string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	Name      string         `gorm:"type:varchar(200);not null"                     json:"name"`
	DeletedAt gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }

// CourseLevel 课程级别表 — 对应 course_levels
// SortOrder 是级别序号，也是候选组命名中的级别位
type CourseLevel struct {
	CourseLevelID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_level_id"`
	CourseID      string         `gorm:"type:uuid;not null"                             json:"course_id"`
	Name          string         `gorm:"type:varchar(100);not null"                     json:"name"`
	SortOrder     int            `gorm:"type:smallint;not null;default:1"               json:"sort_order"`
	DeletedAt     gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`

	// 关联
	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
}

// TableName 指定表名
func (CourseLevel) TableName() string { return "course_levels" }
