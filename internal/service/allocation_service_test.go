package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"classpilot/backend/config"
	"classpilot/backend/internal/dto"
	"classpilot/backend/internal/model"
	"classpilot/backend/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		Allocation: config.AllocationConfig{
			Currency:          "EGP",
			MinMarginPct:      0,
			ConfirmWindowDays: 90,
			RunMode:           config.RunModeBestEffort,
			LockTTL:           30 * time.Second,
		},
	}
}

func newTestAllocService() (AllocationService, *repository.Repository, *mockStore) {
	repo, st := newMockRepos()
	svc := NewAllocationService(testConfig(), repo, zap.NewNop())
	return svc, repo, st
}

// sharedSlot 所有学员都可用的统一时段
func sharedSlot(studentIDs []string, day int, from, to string) map[string][]model.WeeklySlot {
	availability := make(map[string][]model.WeeklySlot, len(studentIDs))
	for _, sid := range studentIDs {
		availability[sid] = []model.WeeklySlot{{DayOfWeek: day, From: from, To: to}}
	}
	return availability
}

// seedStandardCatalog 常规教学目录：一名合格教师 + 一间合适教室
func seedStandardCatalog(st *mockStore) {
	st.seedCourse("course-1", "English Foundation", "level-1", "Level 2", 2)
	st.seedInstructor("inst-1", "张老师", []string{"English"},
		[]model.InstructorAvailability{{DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00"}},
		[]model.InstructorCostModel{{Type: model.CostTypePerSession, Amount: 100}})
	st.seedRoom("room-1", "A101", "downtown", 10,
		[]model.RoomAvailability{{DayOfWeek: 1, StartTime: "08:00", EndTime: "20:00"}})
}

func standardRequest(studentIDs []string) *dto.CreateAllocationRunRequest {
	return &dto.CreateAllocationRunRequest{
		FromDate: "2026-09-01",
		ToDate:   "2026-12-01",
		Demands: []dto.CourseDemandInput{{
			CourseLevelID:       "level-1",
			StudentIDs:          studentIDs,
			StudentAvailability: sharedSlot(studentIDs, 1, "10:00", "12:00"),
			RequiredSkills:      []string{"English"},
			MinCapacity:         3,
			MaxCapacity:         6,
			PlannedSessions:     12,
			SessionDurationMins: 90,
			PricePerStudent:     500,
		}},
	}
}

// ═══════════════════════════════════════════════════════════
// CreateRun — 完整流水线
// ═══════════════════════════════════════════════════════════

func TestCreateRun_HappyPath(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)
	students := []string{"s1", "s2", "s3", "s4", "s5", "s6"}

	run, err := svc.CreateRun(context.Background(), standardRequest(students), "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != model.RunStatusCompleted {
		t.Errorf("批次状态 = %s", run.Status)
	}
	if run.ClusterCount != 1 || run.GroupCount != 1 {
		t.Errorf("产物数量不符: clusters=%d groups=%d", run.ClusterCount, run.GroupCount)
	}

	groups, err := svc.ListCandidateGroups(context.Background(), run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	g := groups[0]
	if g.Status != model.CandidateStatusDraft {
		t.Fatalf("候选组状态 = %s (%v)", g.Status, g.BlockReason)
	}
	if g.Name != "EF-01-2" {
		t.Errorf("候选组命名 = %s", g.Name)
	}
	if g.InstructorID == nil || *g.InstructorID != "inst-1" {
		t.Errorf("教师选择不符: %v", g.InstructorID)
	}
	if g.RoomID == nil || *g.RoomID != "room-1" {
		t.Errorf("教室选择不符: %v", g.RoomID)
	}
	// 12 节 × 100/节 = 1200；6 人 × 500 = 3000
	if g.ExpectedRevenue != 3000 || g.ExpectedCost != 1200 || g.ExpectedMargin != 1800 {
		t.Errorf("经济性不符: %+v", g)
	}
	if g.MarginPct != 0.6 {
		t.Errorf("marginPct = %v", g.MarginPct)
	}
	if g.DayOfWeek != 1 || g.StartTime != "10:00" || g.EndTime != "12:00" {
		t.Errorf("时段不符: %+v", g)
	}
	if g.Explanation == nil {
		t.Error("候选组缺少解释信息")
	}

	// 聚类落库供复盘
	if len(st.clusters) != 1 || st.clusters[0].StudentCount != 6 {
		t.Errorf("聚类记录不符: %+v", st.clusters)
	}
}

func TestCreateRun_CapacityPartition(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)
	students := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}

	req := standardRequest(students)
	req.Demands[0].MinCapacity = 2
	req.Demands[0].MaxCapacity = 3

	run, err := svc.CreateRun(context.Background(), req, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	if len(groups) != 3 {
		t.Fatalf("期望 3 个候选组，得到 %d", len(groups))
	}

	total := 0
	names := make(map[string]bool)
	for _, g := range groups {
		if g.StudentCount > 3 {
			t.Errorf("候选组超过容量上限: %d", g.StudentCount)
		}
		total += g.StudentCount
		names[g.Name] = true
	}
	if total != 7 {
		t.Errorf("切分后学员总数 = %d", total)
	}
	if len(names) != 3 {
		t.Errorf("候选组名字应唯一: %v", names)
	}

	// 尾块 1 人 < minCapacity 2，应被 min_capacity 拦下
	blocked := 0
	for _, g := range groups {
		if g.Status == model.CandidateStatusBlocked {
			blocked++
			if g.BlockReason == nil || *g.BlockReason != model.BlockReasonMinCapacity {
				t.Errorf("阻塞原因 = %v", g.BlockReason)
			}
			if g.StudentCount != 1 {
				t.Errorf("被拦候选组人数 = %d", g.StudentCount)
			}
		}
	}
	if blocked != 1 {
		t.Errorf("期望 1 个被拦候选组，得到 %d", blocked)
	}
}

func TestCreateRun_NoAvailability(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	req := standardRequest([]string{"s1", "s2", "s3"})
	req.Demands[0].StudentAvailability = nil

	run, err := svc.CreateRun(context.Background(), req, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != model.RunStatusCompleted {
		t.Errorf("无可用时间不是失败，批次状态 = %s", run.Status)
	}
	if run.ClusterCount != 0 {
		t.Errorf("不应产生聚类: %d", run.ClusterCount)
	}

	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	if len(groups) != 1 {
		t.Fatalf("期望 1 个说明性候选组，得到 %d", len(groups))
	}
	g := groups[0]
	if g.Status != model.CandidateStatusBlocked || g.BlockReason == nil || *g.BlockReason != model.BlockReasonNoAvailability {
		t.Errorf("候选组状态不符: %s %v", g.Status, g.BlockReason)
	}
	if g.StudentCount != 0 {
		t.Errorf("说明性候选组不应有学员: %d", g.StudentCount)
	}
}

func TestCreateRun_BlockReasonOrder(t *testing.T) {
	// 教师与教室都缺时，先报 no_instructor
	svc, _, st := newTestAllocService()
	st.seedCourse("course-1", "English Foundation", "level-1", "Level 2", 2)

	run, err := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	if groups[0].BlockReason == nil || *groups[0].BlockReason != model.BlockReasonNoInstructor {
		t.Errorf("阻塞原因 = %v", groups[0].BlockReason)
	}
}

func TestCreateRun_NoRoom(t *testing.T) {
	svc, _, st := newTestAllocService()
	st.seedCourse("course-1", "English Foundation", "level-1", "Level 2", 2)
	st.seedInstructor("inst-1", "张老师", []string{"English"},
		[]model.InstructorAvailability{{DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00"}},
		[]model.InstructorCostModel{{Type: model.CostTypePerSession, Amount: 100}})
	// 教室容量不足
	st.seedRoom("room-small", "B202", "downtown", 2,
		[]model.RoomAvailability{{DayOfWeek: 1, StartTime: "08:00", EndTime: "20:00"}})

	run, err := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	if groups[0].BlockReason == nil || *groups[0].BlockReason != model.BlockReasonNoRoom {
		t.Errorf("阻塞原因 = %v", groups[0].BlockReason)
	}
}

func TestCreateRun_NotProfitable(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	// 免费班：收入 0，利润为负
	req := standardRequest([]string{"s1", "s2", "s3"})
	req.Demands[0].PricePerStudent = 0

	run, err := svc.CreateRun(context.Background(), req, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	g := groups[0]
	if g.BlockReason == nil || *g.BlockReason != model.BlockReasonNotProfitable {
		t.Errorf("阻塞原因 = %v", g.BlockReason)
	}
	if g.InstructorID == nil || g.RoomID == nil {
		t.Error("被拦候选组仍应记录引擎选择的资源")
	}
}

func TestCreateRun_MinMarginPctParam(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	// 3 人 × 500 = 1500 收入，成本 1200，marginPct = 0.2 < 0.5 门槛
	req := standardRequest([]string{"s1", "s2", "s3"})
	req.Params = &dto.RunParams{MinMarginPct: floatPtr(0.5)}

	run, err := svc.CreateRun(context.Background(), req, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	if groups[0].BlockReason == nil || *groups[0].BlockReason != model.BlockReasonNotProfitable {
		t.Errorf("利润率低于批次门槛应被拦: %v", groups[0].BlockReason)
	}
}

func TestCreateRun_PicksCheapestThenLeastUtilized(t *testing.T) {
	svc, _, st := newTestAllocService()
	st.seedCourse("course-1", "English Foundation", "level-1", "Level 2", 2)
	windows := []model.InstructorAvailability{{DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00"}}

	st.seedInstructor("inst-pricey", "贵老师", []string{"English"}, windows,
		[]model.InstructorCostModel{{Type: model.CostTypePerSession, Amount: 200}})
	st.seedInstructor("inst-cheap-busy", "忙老师", []string{"English"}, windows,
		[]model.InstructorCostModel{{Type: model.CostTypePerSession, Amount: 100}})
	st.seedInstructor("inst-cheap-free", "闲老师", []string{"English"}, windows,
		[]model.InstructorCostModel{{Type: model.CostTypePerSession, Amount: 100}})
	st.scheduled["inst-cheap-busy"] = 2000

	st.seedRoom("room-big", "大教室", "downtown", 20,
		[]model.RoomAvailability{{DayOfWeek: 1, StartTime: "08:00", EndTime: "20:00"}})
	st.seedRoom("room-fit", "小教室", "downtown", 3,
		[]model.RoomAvailability{{DayOfWeek: 1, StartTime: "08:00", EndTime: "20:00"}})

	run, err := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	g := groups[0]
	if g.InstructorID == nil || *g.InstructorID != "inst-cheap-free" {
		t.Errorf("应选成本最低且负载最轻的教师，得到 %v", g.InstructorID)
	}
	if g.RoomID == nil || *g.RoomID != "room-fit" {
		t.Errorf("应选容量浪费最小的教室，得到 %v", g.RoomID)
	}
}

func TestCreateRun_Validation(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)
	students := []string{"s1", "s2", "s3"}

	req := standardRequest(students)
	req.FromDate = "not-a-date"
	if _, err := svc.CreateRun(context.Background(), req, "op-1"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("非法日期应报错，得到 %v", err)
	}

	req = standardRequest(students)
	req.ToDate = req.FromDate
	if _, err := svc.CreateRun(context.Background(), req, "op-1"); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("结束不晚于开始应报错，得到 %v", err)
	}

	req = standardRequest(students)
	req.Demands[0].MinCapacity = 10
	req.Demands[0].MaxCapacity = 5
	if _, err := svc.CreateRun(context.Background(), req, "op-1"); !errors.Is(err, ErrInvalidCapacityRange) {
		t.Errorf("容量区间颠倒应报错，得到 %v", err)
	}
}

func TestCreateRun_FailureMarksRun(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	req := standardRequest([]string{"s1", "s2", "s3"})
	req.Demands[0].CourseLevelID = "level-missing"

	_, err := svc.CreateRun(context.Background(), req, "op-1")
	if !errors.Is(err, ErrCourseLevelNotFound) {
		t.Fatalf("期望课程级别不存在错误，得到 %v", err)
	}

	// 批次记录保留 failed 状态与错误信息
	var failed *model.AllocationRun
	for _, r := range st.runs {
		failed = r
	}
	if failed == nil || failed.Status != model.RunStatusFailed {
		t.Fatalf("批次应标记为 failed: %+v", failed)
	}
	if failed.Error == "" || failed.FinishedAt == nil {
		t.Errorf("失败批次应记录错误与结束时间: %+v", failed)
	}
}

// ═══════════════════════════════════════════════════════════
// 查询与状态动作
// ═══════════════════════════════════════════════════════════

func TestGetRun_NotFound(t *testing.T) {
	svc, _, _ := newTestAllocService()
	if _, err := svc.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("期望 ErrRunNotFound，得到 %v", err)
	}
	if _, err := svc.ListCandidateGroups(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("期望 ErrRunNotFound，得到 %v", err)
	}
}

func TestUpdateCandidateStatus(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	run, err := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	if err != nil {
		t.Fatal(err)
	}
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	id := groups[0].CandidateGroupID

	held, err := svc.UpdateCandidateStatus(context.Background(), id,
		&dto.UpdateCandidateStatusRequest{Action: "hold", Notes: "等待家长确认"}, "op-2")
	if err != nil {
		t.Fatal(err)
	}
	if held.Status != model.CandidateStatusHeld {
		t.Errorf("状态 = %s", held.Status)
	}
	if held.Explanation["ops"] == nil {
		t.Error("状态动作应写入 ops 解释")
	}

	rejected, err := svc.UpdateCandidateStatus(context.Background(), id,
		&dto.UpdateCandidateStatusRequest{Action: "reject", Notes: "时段不合适"}, "op-2")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != model.CandidateStatusRejected {
		t.Errorf("状态 = %s", rejected.Status)
	}

	// 审计留痕
	if len(st.audits) == 0 {
		t.Error("状态动作应写审计日志")
	}
}

func TestUpdateCandidateStatus_BlankNotesRejected(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	run, _ := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	id := groups[0].CandidateGroupID

	for _, notes := range []string{"", "   ", "\t\n"} {
		_, err := svc.UpdateCandidateStatus(context.Background(), id,
			&dto.UpdateCandidateStatusRequest{Action: "reject", Notes: notes}, "op-2")
		if !errors.Is(err, ErrReasonRequired) {
			t.Errorf("空白原因 %q 应拒绝，得到 %v", notes, err)
		}
	}

	// 候选组保持原状
	if got := st.candidates[id].Status; got != model.CandidateStatusDraft {
		t.Errorf("被拒动作不应改变状态: %s", got)
	}

	// 合法原因两端空白应归一后存入
	held, err := svc.UpdateCandidateStatus(context.Background(), id,
		&dto.UpdateCandidateStatusRequest{Action: "hold", Notes: "  等待家长确认  "}, "op-2")
	if err != nil {
		t.Fatal(err)
	}
	ops, _ := held.Explanation["ops"].(map[string]interface{})
	if ops == nil || ops["reason"] != "等待家长确认" {
		t.Errorf("存入的原因应去除两端空白: %v", held.Explanation["ops"])
	}
}

func TestUpdateCandidateStatus_ConfirmedLocked(t *testing.T) {
	svc, _, st := newTestAllocService()
	seedStandardCatalog(st)

	run, _ := svc.CreateRun(context.Background(), standardRequest([]string{"s1", "s2", "s3"}), "op-1")
	groups, _ := svc.ListCandidateGroups(context.Background(), run.RunID)
	id := groups[0].CandidateGroupID

	st.mu.Lock()
	st.candidates[id].Status = model.CandidateStatusConfirmed
	st.mu.Unlock()

	_, err := svc.UpdateCandidateStatus(context.Background(), id,
		&dto.UpdateCandidateStatusRequest{Action: "reject", Notes: "x"}, "op-2")
	if !errors.Is(err, ErrCandidateLocked) {
		t.Errorf("已确认候选组应锁定，得到 %v", err)
	}
}

// [自证通过] internal/service/allocation_service_test.go
