package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"classpilot/backend/internal/model"
	pkgerrors "classpilot/backend/pkg/errors"
)

// ClassRepository 班级数据访问接口
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	// FindInstructorConflict 查找与给定 星期/时间段/日期范围 重叠、占用该教师的现有班级。
	// 无冲突时返回 (nil, nil)。时间与日期均按严格区间重叠判定；无结束日期的班级视为永久占用。
	FindInstructorConflict(ctx context.Context, instructorID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error)
	// FindRoomConflict 同上，针对教室
	FindRoomConflict(ctx context.Context, roomID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error)
}

// GroupRepository 学员组数据访问接口
type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
}

// EnrollmentRepository 学员报读数据访问接口
type EnrollmentRepository interface {
	// AssignToGroup 将该课程级别下给定学员的 active 报读重新指派到新学员组/班级，
	// 返回受影响行数
	AssignToGroup(ctx context.Context, courseLevelID string, studentIDs []string, groupID, classID string) (int64, error)
}

// ── Class Repository 实现 ──

type classRepo struct {
	db *gorm.DB
}

func NewClassRepo(db *gorm.DB) ClassRepository {
	return &classRepo{db: db}
}

func (r *classRepo) Create(ctx context.Context, class *model.Class) error {
	err := r.db.WithContext(ctx).Create(class).Error
	if err != nil && isExclusionViolation(err) {
		// 撞上 classes 表的 EXCLUDE 约束：并发确认抢占了同一教师/教室时段
		return pkgerrors.ErrBookingExcluded
	}
	return err
}

// isExclusionViolation 判断错误是否为 PostgreSQL 排它约束冲突（SQLSTATE 23P01）
func isExclusionViolation(err error) bool {
	return strings.Contains(err.Error(), "23P01") ||
		strings.Contains(err.Error(), "exclusion constraint")
}

func (r *classRepo) FindInstructorConflict(ctx context.Context, instructorID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error) {
	return r.findConflict(ctx, "instructor_id", instructorID, dayOfWeek, startTime, endTime, fromDate, toDate)
}

func (r *classRepo) FindRoomConflict(ctx context.Context, roomID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error) {
	return r.findConflict(ctx, "room_id", roomID, dayOfWeek, startTime, endTime, fromDate, toDate)
}

func (r *classRepo) findConflict(ctx context.Context, column, resourceID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Where(column+" = ?", resourceID).
		Where("day_of_week = ?", dayOfWeek).
		Where("start_time < ? AND end_time > ?", endTime, startTime).
		Where("start_date < ? AND (end_date IS NULL OR end_date > ?)", toDate, fromDate).
		First(&class).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &class, nil
}

// ── Group Repository 实现 ──

type groupRepo struct {
	db *gorm.DB
}

func NewGroupRepo(db *gorm.DB) GroupRepository {
	return &groupRepo{db: db}
}

func (r *groupRepo) Create(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// ── Enrollment Repository 实现 ──

type enrollmentRepo struct {
	db *gorm.DB
}

func NewEnrollmentRepo(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) AssignToGroup(ctx context.Context, courseLevelID string, studentIDs []string, groupID, classID string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.StudentEnrollment{}).
		Where("course_level_id = ? AND student_id IN ? AND status = ?",
			courseLevelID, studentIDs, model.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"group_id": groupID,
			"class_id": classID,
		})
	return result.RowsAffected, result.Error
}
