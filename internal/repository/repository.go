package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Run            AllocationRunRepository
	Demand         CourseDemandRepository
	TimeCluster    TimeClusterRepository
	CandidateGroup CandidateGroupRepository
	CourseLevel    CourseLevelRepository
	Instructor     InstructorRepository
	Room           RoomRepository
	Class          ClassRepository
	Group          GroupRepository
	Enrollment     EnrollmentRepository
	Audit          AuditRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		Run:            NewAllocationRunRepo(db),
		Demand:         NewCourseDemandRepo(db),
		TimeCluster:    NewTimeClusterRepo(db),
		CandidateGroup: NewCandidateGroupRepo(db),
		CourseLevel:    NewCourseLevelRepo(db),
		Instructor:     NewInstructorRepo(db),
		Room:           NewRoomRepo(db),
		Class:          NewClassRepo(db),
		Group:          NewGroupRepo(db),
		Enrollment:     NewEnrollmentRepo(db),
		Audit:          NewAuditRepo(db),
	}
}

// WithTx 在单个数据库事务中执行 fn，fn 收到绑定事务连接的 Repository。
// fn 返回 error 时整个事务回滚。
// db 为 nil（单测 mock 场景）时直接执行 fn，不提供事务语义。
func (r *Repository) WithTx(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// LockBookingResources 对给定资源键逐个获取事务级咨询锁（pg_advisory_xact_lock），
// 使同一教师/教室的确认提交串行化：后到者在锁上等待，醒来后能看到先行者已提交的班级，
// 从而在应用层冲突检查中得到具名报错，而不是撞上排它约束。
// 锁随事务结束自动释放，必须在 WithTx 内调用。
func (r *Repository) LockBookingResources(ctx context.Context, keys ...string) error {
	if r.db == nil {
		return nil
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := r.db.WithContext(ctx).
			Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
			return err
		}
	}
	return nil
}
