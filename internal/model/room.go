package model

import (
	"time"

	"gorm.io/gorm"
)

// Room 教室表 — 对应 rooms（外部目录，本引擎只读）
type Room struct {
	RoomID    string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	Name      string         `gorm:"type:varchar(100);not null"                     json:"name"`
	Location  string         `gorm:"type:varchar(50);not null"                      json:"location"`
	Capacity  int            `gorm:"type:smallint;not null"                         json:"capacity"`
	IsActive  bool           `gorm:"not null;default:true"                          json:"is_active"`
	DeletedAt gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`

	// 关联
	Availabilities []RoomAvailability `gorm:"foreignKey:RoomID" json:"availabilities,omitempty"`
}

// TableName 指定表名
func (Room) TableName() string { return "rooms" }

// RoomAvailability 教室每周可用窗口表 — 对应 room_availabilities
type RoomAvailability struct {
	AvailabilityID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"availability_id"`
	RoomID         string         `gorm:"type:uuid;not null"                             json:"room_id"`
	DayOfWeek      int            `gorm:"type:smallint;not null"                         json:"day_of_week"`
	StartTime      string         `gorm:"type:varchar(5);not null"                      json:"start_time"`
	EndTime        string         `gorm:"type:varchar(5);not null"                      json:"end_time"`
	EffectiveFrom  *time.Time     `gorm:"type:date"                                      json:"effective_from,omitempty"`
	EffectiveTo    *time.Time     `gorm:"type:date"                                      json:"effective_to,omitempty"`
	DeletedAt      gorm.DeletedAt `gorm:"index"                                          json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (RoomAvailability) TableName() string { return "room_availabilities" }
