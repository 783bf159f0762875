package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"classpilot/backend/internal/model"
	pkgerrors "classpilot/backend/pkg/errors"
)

// AllocationRunRepository 分配批次数据访问接口
type AllocationRunRepository interface {
	Create(ctx context.Context, run *model.AllocationRun) error
	GetByID(ctx context.Context, id string) (*model.AllocationRun, error)
	List(ctx context.Context) ([]model.AllocationRun, error)
	// MarkCompleted 将批次置为 completed 并记录结束时间
	MarkCompleted(ctx context.Context, id string) error
	// MarkFailed 将批次置为 failed 并捕获错误消息
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// CountArtifacts 统计批次的聚类数与候选组数（只读投影用）
	CountArtifacts(ctx context.Context, id string) (clusters int64, groups int64, err error)
}

// CourseDemandRepository 开班需求数据访问接口
type CourseDemandRepository interface {
	Create(ctx context.Context, demand *model.CourseDemand) error
	GetByID(ctx context.Context, id string) (*model.CourseDemand, error)
	ListByRun(ctx context.Context, runID string) ([]model.CourseDemand, error)
}

// TimeClusterRepository 时段聚类数据访问接口
type TimeClusterRepository interface {
	BatchCreate(ctx context.Context, clusters []model.TimeCluster) error
	ListByDemand(ctx context.Context, demandID string) ([]model.TimeCluster, error)
	ListByRun(ctx context.Context, runID string) ([]model.TimeCluster, error)
}

// CandidateGroupRepository 候选班组数据访问接口
type CandidateGroupRepository interface {
	Create(ctx context.Context, group *model.CandidateGroup) error
	GetByID(ctx context.Context, id string) (*model.CandidateGroup, error)
	// ListByRun 按 状态升序、预期利润降序 返回批次的候选组
	ListByRun(ctx context.Context, runID string) ([]model.CandidateGroup, error)
	// ListNamesByPrefix 返回批次内以 prefix- 开头的候选组名（命名序号推导用）
	ListNamesByPrefix(ctx context.Context, runID, prefix string) ([]string, error)
	// Update 带乐观锁的整行更新
	Update(ctx context.Context, group *model.CandidateGroup) error
}

// AuditRepository 审计日志写入接口
type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}

// ── AllocationRun Repository 实现 ──

type allocationRunRepo struct {
	db *gorm.DB
}

func NewAllocationRunRepo(db *gorm.DB) AllocationRunRepository {
	return &allocationRunRepo{db: db}
}

func (r *allocationRunRepo) Create(ctx context.Context, run *model.AllocationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *allocationRunRepo) GetByID(ctx context.Context, id string) (*model.AllocationRun, error) {
	var run model.AllocationRun
	err := r.db.WithContext(ctx).
		Preload("Demands").
		Preload("Demands.CourseLevel").
		Preload("Demands.CourseLevel.Course").
		Where("run_id = ?", id).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *allocationRunRepo) List(ctx context.Context) ([]model.AllocationRun, error) {
	var runs []model.AllocationRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

func (r *allocationRunRepo) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.AllocationRun{}).
		Where("run_id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.RunStatusCompleted,
			"finished_at": now,
		}).Error
}

func (r *allocationRunRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.AllocationRun{}).
		Where("run_id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.RunStatusFailed,
			"finished_at": now,
			"error":       errMsg,
		}).Error
}

func (r *allocationRunRepo) CountArtifacts(ctx context.Context, id string) (int64, int64, error) {
	var clusters, groups int64
	if err := r.db.WithContext(ctx).
		Model(&model.TimeCluster{}).
		Where("run_id = ?", id).
		Count(&clusters).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).
		Model(&model.CandidateGroup{}).
		Where("run_id = ?", id).
		Count(&groups).Error; err != nil {
		return 0, 0, err
	}
	return clusters, groups, nil
}

// ── CourseDemand Repository 实现 ──

type courseDemandRepo struct {
	db *gorm.DB
}

func NewCourseDemandRepo(db *gorm.DB) CourseDemandRepository {
	return &courseDemandRepo{db: db}
}

func (r *courseDemandRepo) Create(ctx context.Context, demand *model.CourseDemand) error {
	return r.db.WithContext(ctx).Create(demand).Error
}

func (r *courseDemandRepo) GetByID(ctx context.Context, id string) (*model.CourseDemand, error) {
	var demand model.CourseDemand
	err := r.db.WithContext(ctx).
		Preload("CourseLevel").
		Preload("CourseLevel.Course").
		Where("demand_id = ?", id).
		First(&demand).Error
	if err != nil {
		return nil, err
	}
	return &demand, nil
}

func (r *courseDemandRepo) ListByRun(ctx context.Context, runID string) ([]model.CourseDemand, error) {
	var demands []model.CourseDemand
	err := r.db.WithContext(ctx).
		Preload("CourseLevel").
		Preload("CourseLevel.Course").
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&demands).Error
	return demands, err
}

// ── TimeCluster Repository 实现 ──

type timeClusterRepo struct {
	db *gorm.DB
}

func NewTimeClusterRepo(db *gorm.DB) TimeClusterRepository {
	return &timeClusterRepo{db: db}
}

func (r *timeClusterRepo) BatchCreate(ctx context.Context, clusters []model.TimeCluster) error {
	if len(clusters) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&clusters).Error
}

func (r *timeClusterRepo) ListByDemand(ctx context.Context, demandID string) ([]model.TimeCluster, error) {
	var clusters []model.TimeCluster
	err := r.db.WithContext(ctx).
		Where("demand_id = ?", demandID).
		Order("student_count DESC").
		Find(&clusters).Error
	return clusters, err
}

func (r *timeClusterRepo) ListByRun(ctx context.Context, runID string) ([]model.TimeCluster, error) {
	var clusters []model.TimeCluster
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("student_count DESC").
		Find(&clusters).Error
	return clusters, err
}

// ── CandidateGroup Repository 实现 ──

type candidateGroupRepo struct {
	db *gorm.DB
}

func NewCandidateGroupRepo(db *gorm.DB) CandidateGroupRepository {
	return &candidateGroupRepo{db: db}
}

func (r *candidateGroupRepo) Create(ctx context.Context, group *model.CandidateGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *candidateGroupRepo) GetByID(ctx context.Context, id string) (*model.CandidateGroup, error) {
	var group model.CandidateGroup
	err := r.db.WithContext(ctx).
		Preload("CourseLevel").
		Preload("CourseLevel.Course").
		Preload("Instructor").
		Preload("Room").
		Where("candidate_group_id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *candidateGroupRepo) ListByRun(ctx context.Context, runID string) ([]model.CandidateGroup, error) {
	var groups []model.CandidateGroup
	err := r.db.WithContext(ctx).
		Preload("CourseLevel").
		Preload("CourseLevel.Course").
		Preload("Instructor").
		Preload("Room").
		Where("run_id = ?", runID).
		Order("status ASC, expected_margin DESC").
		Find(&groups).Error
	return groups, err
}

func (r *candidateGroupRepo) ListNamesByPrefix(ctx context.Context, runID, prefix string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&model.CandidateGroup{}).
		Where("run_id = ? AND name LIKE ?", runID, prefix+"-%").
		Pluck("name", &names).Error
	return names, err
}

func (r *candidateGroupRepo) Update(ctx context.Context, group *model.CandidateGroup) error {
	oldVersion := group.Version
	result := r.db.WithContext(ctx).
		Model(group).
		Where("candidate_group_id = ? AND version = ?", group.CandidateGroupID, oldVersion).
		Updates(map[string]interface{}{
			"status":             group.Status,
			"block_reason":       group.BlockReason,
			"instructor_id":      group.InstructorID,
			"room_id":            group.RoomID,
			"explanation":        group.Explanation,
			"locked_at":          group.LockedAt,
			"locked_by_id":       group.LockedByID,
			"confirmed_group_id": group.ConfirmedGroupID,
			"confirmed_class_id": group.ConfirmedClassID,
			"updated_by":         group.UpdatedBy,
			"version":            oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	group.Version = oldVersion + 1
	return nil
}

// ── AuditLog Repository 实现 ──

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}
