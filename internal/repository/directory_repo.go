package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"classpilot/backend/internal/model"
)

// InstructorRepository 教师目录数据访问接口（只读）
type InstructorRepository interface {
	// ListActive 返回所有在职教师，含技能、可用窗口、成本模型
	ListActive(ctx context.Context) ([]model.Instructor, error)
	GetByID(ctx context.Context, id string) (*model.Instructor, error)
	// ScheduledMinutes 统计教师在 [from, to) 内已排节次的总分钟数（利用率）
	ScheduledMinutes(ctx context.Context, instructorID string, from, to time.Time) (float64, error)
}

// RoomRepository 教室目录数据访问接口（只读）
type RoomRepository interface {
	// ListActive 返回启用中的教室（可按位置过滤），含可用窗口
	ListActive(ctx context.Context, location *string) ([]model.Room, error)
	GetByID(ctx context.Context, id string) (*model.Room, error)
}

// CourseLevelRepository 课程级别数据访问接口（只读）
type CourseLevelRepository interface {
	GetByID(ctx context.Context, id string) (*model.CourseLevel, error)
}

// ── Instructor Repository 实现 ──

type instructorRepo struct {
	db *gorm.DB
}

func NewInstructorRepo(db *gorm.DB) InstructorRepository {
	return &instructorRepo{db: db}
}

func (r *instructorRepo) ListActive(ctx context.Context) ([]model.Instructor, error) {
	var instructors []model.Instructor
	err := r.db.WithContext(ctx).
		Preload("Skills").
		Preload("Availability").
		Preload("CostModels").
		Where("status = ?", "active").
		Find(&instructors).Error
	return instructors, err
}

func (r *instructorRepo) GetByID(ctx context.Context, id string) (*model.Instructor, error) {
	var instructor model.Instructor
	err := r.db.WithContext(ctx).
		Preload("Skills").
		Preload("Availability").
		Preload("CostModels").
		Where("instructor_id = ?", id).
		First(&instructor).Error
	if err != nil {
		return nil, err
	}
	return &instructor, nil
}

func (r *instructorRepo) ScheduledMinutes(ctx context.Context, instructorID string, from, to time.Time) (float64, error) {
	var minutes *float64
	err := r.db.WithContext(ctx).
		Model(&model.ClassSession{}).
		Select("SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 60)").
		Where("instructor_id = ? AND scheduled_date >= ? AND scheduled_date < ? AND end_time > start_time",
			instructorID, from, to).
		Scan(&minutes).Error
	if err != nil {
		return 0, err
	}
	if minutes == nil {
		return 0, nil
	}
	return *minutes, nil
}

// ── Room Repository 实现 ──

type roomRepo struct {
	db *gorm.DB
}

func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) ListActive(ctx context.Context, location *string) ([]model.Room, error) {
	q := r.db.WithContext(ctx).
		Preload("Availabilities").
		Where("is_active = ?", true)
	if location != nil && *location != "" {
		q = q.Where("location = ?", *location)
	}
	var rooms []model.Room
	err := q.Find(&rooms).Error
	return rooms, err
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Preload("Availabilities").
		Where("room_id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ── CourseLevel Repository 实现 ──

type courseLevelRepo struct {
	db *gorm.DB
}

func NewCourseLevelRepo(db *gorm.DB) CourseLevelRepository {
	return &courseLevelRepo{db: db}
}

func (r *courseLevelRepo) GetByID(ctx context.Context, id string) (*model.CourseLevel, error) {
	var level model.CourseLevel
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where("course_level_id = ?", id).
		First(&level).Error
	if err != nil {
		return nil, err
	}
	return &level, nil
}
