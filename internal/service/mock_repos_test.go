package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"classpilot/backend/internal/model"
	"classpilot/backend/internal/repository"
	pkgerrors "classpilot/backend/pkg/errors"
)

// mockStore 各 mock repo 共享的内存存储
type mockStore struct {
	mu sync.Mutex

	runs        map[string]*model.AllocationRun
	demands     map[string]*model.CourseDemand
	clusters    []model.TimeCluster
	candidates  map[string]*model.CandidateGroup
	levels      map[string]*model.CourseLevel
	courses     map[string]*model.Course
	instructors []model.Instructor
	scheduled   map[string]float64 // instructorID → 已排分钟数
	rooms       []model.Room
	classes     []*model.Class
	groups      []*model.Group
	enrollments []*model.StudentEnrollment
	audits      []model.AuditLog

	seq int
}

func newMockStore() *mockStore {
	return &mockStore{
		runs:       make(map[string]*model.AllocationRun),
		demands:    make(map[string]*model.CourseDemand),
		candidates: make(map[string]*model.CandidateGroup),
		levels:     make(map[string]*model.CourseLevel),
		courses:    make(map[string]*model.Course),
		scheduled:  make(map[string]float64),
	}
}

func (st *mockStore) nextID(prefix string) string {
	st.seq++
	return fmt.Sprintf("%s-%d", prefix, st.seq)
}

// newMockRepos 构建全 mock 的 Repository 聚合（db 为 nil，WithTx 直接执行）
func newMockRepos() (*repository.Repository, *mockStore) {
	st := newMockStore()
	return &repository.Repository{
		Run:            &mockRunRepo{st},
		Demand:         &mockDemandRepo{st},
		TimeCluster:    &mockClusterRepo{st},
		CandidateGroup: &mockCandidateRepo{st},
		CourseLevel:    &mockLevelRepo{st},
		Instructor:     &mockInstructorRepo{st},
		Room:           &mockRoomRepo{st},
		Class:          &mockClassRepo{st},
		Group:          &mockGroupRepo{st},
		Enrollment:     &mockEnrollmentRepo{st},
		Audit:          &mockAuditRepo{st},
	}, st
}

// attachLevel 查好 CourseLevel + Course 关联
func (st *mockStore) attachLevel(id string) *model.CourseLevel {
	level, ok := st.levels[id]
	if !ok {
		return nil
	}
	cp := *level
	if course, ok := st.courses[level.CourseID]; ok {
		c := *course
		cp.Course = &c
	}
	return &cp
}

// ── Mock AllocationRunRepository ──

type mockRunRepo struct{ st *mockStore }

func (m *mockRunRepo) Create(_ context.Context, run *model.AllocationRun) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if run.RunID == "" {
		run.RunID = m.st.nextID("run")
	}
	run.CreatedAt = time.Now()
	cp := *run
	m.st.runs[run.RunID] = &cp
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (*model.AllocationRun, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	run, ok := m.st.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *run
	cp.Demands = nil
	for _, d := range m.st.demands {
		if d.RunID == id {
			dc := *d
			dc.CourseLevel = m.st.attachLevel(d.CourseLevelID)
			cp.Demands = append(cp.Demands, dc)
		}
	}
	return &cp, nil
}

func (m *mockRunRepo) List(_ context.Context) ([]model.AllocationRun, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var runs []model.AllocationRun
	for _, r := range m.st.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

func (m *mockRunRepo) MarkCompleted(_ context.Context, id string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	run, ok := m.st.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	run.Status = model.RunStatusCompleted
	run.FinishedAt = &now
	return nil
}

func (m *mockRunRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	run, ok := m.st.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	run.Status = model.RunStatusFailed
	run.FinishedAt = &now
	run.Error = errMsg
	return nil
}

func (m *mockRunRepo) CountArtifacts(_ context.Context, id string) (int64, int64, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var clusters, groups int64
	for _, c := range m.st.clusters {
		if c.RunID == id {
			clusters++
		}
	}
	for _, g := range m.st.candidates {
		if g.RunID == id {
			groups++
		}
	}
	return clusters, groups, nil
}

// ── Mock CourseDemandRepository ──

type mockDemandRepo struct{ st *mockStore }

func (m *mockDemandRepo) Create(_ context.Context, demand *model.CourseDemand) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if demand.DemandID == "" {
		demand.DemandID = m.st.nextID("demand")
	}
	cp := *demand
	m.st.demands[demand.DemandID] = &cp
	return nil
}

func (m *mockDemandRepo) GetByID(_ context.Context, id string) (*model.CourseDemand, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	d, ok := m.st.demands[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	cp.CourseLevel = m.st.attachLevel(d.CourseLevelID)
	return &cp, nil
}

func (m *mockDemandRepo) ListByRun(_ context.Context, runID string) ([]model.CourseDemand, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.CourseDemand
	for _, d := range m.st.demands {
		if d.RunID == runID {
			result = append(result, *d)
		}
	}
	return result, nil
}

// ── Mock TimeClusterRepository ──

type mockClusterRepo struct{ st *mockStore }

func (m *mockClusterRepo) BatchCreate(_ context.Context, clusters []model.TimeCluster) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for i := range clusters {
		if clusters[i].ClusterID == "" {
			clusters[i].ClusterID = m.st.nextID("cluster")
		}
		m.st.clusters = append(m.st.clusters, clusters[i])
	}
	return nil
}

func (m *mockClusterRepo) ListByDemand(_ context.Context, demandID string) ([]model.TimeCluster, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.TimeCluster
	for _, c := range m.st.clusters {
		if c.DemandID == demandID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockClusterRepo) ListByRun(_ context.Context, runID string) ([]model.TimeCluster, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.TimeCluster
	for _, c := range m.st.clusters {
		if c.RunID == runID {
			result = append(result, c)
		}
	}
	return result, nil
}

// ── Mock CandidateGroupRepository ──

type mockCandidateRepo struct{ st *mockStore }

func (m *mockCandidateRepo) Create(_ context.Context, group *model.CandidateGroup) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if group.CandidateGroupID == "" {
		group.CandidateGroupID = m.st.nextID("cg")
	}
	if group.Version == 0 {
		group.Version = 1
	}
	cp := *group
	m.st.candidates[group.CandidateGroupID] = &cp
	return nil
}

func (m *mockCandidateRepo) GetByID(_ context.Context, id string) (*model.CandidateGroup, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	g, ok := m.st.candidates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	cp.CourseLevel = m.st.attachLevel(g.CourseLevelID)
	if g.InstructorID != nil {
		for i := range m.st.instructors {
			if m.st.instructors[i].InstructorID == *g.InstructorID {
				inst := m.st.instructors[i]
				cp.Instructor = &inst
			}
		}
	}
	if g.RoomID != nil {
		for i := range m.st.rooms {
			if m.st.rooms[i].RoomID == *g.RoomID {
				room := m.st.rooms[i]
				cp.Room = &room
			}
		}
	}
	return &cp, nil
}

func (m *mockCandidateRepo) ListByRun(_ context.Context, runID string) ([]model.CandidateGroup, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.CandidateGroup
	for _, g := range m.st.candidates {
		if g.RunID == runID {
			cp := *g
			cp.CourseLevel = m.st.attachLevel(g.CourseLevelID)
			result = append(result, cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Status != result[j].Status {
			return result[i].Status < result[j].Status
		}
		return result[i].ExpectedMargin > result[j].ExpectedMargin
	})
	return result, nil
}

func (m *mockCandidateRepo) ListNamesByPrefix(_ context.Context, runID, prefix string) ([]string, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var names []string
	for _, g := range m.st.candidates {
		if g.RunID == runID && strings.HasPrefix(g.Name, prefix+"-") {
			names = append(names, g.Name)
		}
	}
	return names, nil
}

func (m *mockCandidateRepo) Update(_ context.Context, group *model.CandidateGroup) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	stored, ok := m.st.candidates[group.CandidateGroupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != group.Version {
		return pkgerrors.ErrOptimisticLock
	}
	group.Version++
	cp := *group
	cp.CourseLevel = nil
	cp.Instructor = nil
	cp.Room = nil
	m.st.candidates[group.CandidateGroupID] = &cp
	return nil
}

// ── Mock CourseLevelRepository ──

type mockLevelRepo struct{ st *mockStore }

func (m *mockLevelRepo) GetByID(_ context.Context, id string) (*model.CourseLevel, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	level := m.st.attachLevel(id)
	if level == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return level, nil
}

// ── Mock InstructorRepository ──

type mockInstructorRepo struct{ st *mockStore }

func (m *mockInstructorRepo) ListActive(_ context.Context) ([]model.Instructor, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.Instructor
	for _, inst := range m.st.instructors {
		if inst.Status == "active" {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *mockInstructorRepo) GetByID(_ context.Context, id string) (*model.Instructor, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for i := range m.st.instructors {
		if m.st.instructors[i].InstructorID == id {
			inst := m.st.instructors[i]
			return &inst, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockInstructorRepo) ScheduledMinutes(_ context.Context, instructorID string, _, _ time.Time) (float64, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return m.st.scheduled[instructorID], nil
}

// ── Mock RoomRepository ──

type mockRoomRepo struct{ st *mockStore }

func (m *mockRoomRepo) ListActive(_ context.Context, location *string) ([]model.Room, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var result []model.Room
	for _, room := range m.st.rooms {
		if !room.IsActive {
			continue
		}
		if location != nil && *location != "" && room.Location != *location {
			continue
		}
		result = append(result, room)
	}
	return result, nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for i := range m.st.rooms {
		if m.st.rooms[i].RoomID == id {
			room := m.st.rooms[i]
			return &room, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock ClassRepository ──

// classOverlaps 与真实存储的 EXCLUDE 约束/冲突查询一致的严格区间重叠判定
func classOverlaps(existing *model.Class, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) bool {
	if existing.DayOfWeek != dayOfWeek {
		return false
	}
	if !(timeToMinutes(existing.StartTime) < timeToMinutes(endTime) &&
		timeToMinutes(existing.EndTime) > timeToMinutes(startTime)) {
		return false
	}
	if !existing.StartDate.Before(toDate) {
		return false
	}
	if existing.EndDate != nil && !existing.EndDate.After(fromDate) {
		return false
	}
	return true
}

type mockClassRepo struct{ st *mockStore }

// Create 在同一把锁内做排它检查再插入，模拟数据库 EXCLUDE 约束的原子性
func (m *mockClassRepo) Create(_ context.Context, class *model.Class) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()

	toDate := class.StartDate.AddDate(10, 0, 0)
	if class.EndDate != nil {
		toDate = *class.EndDate
	}
	for _, existing := range m.st.classes {
		sameInstructor := existing.InstructorID != nil && class.InstructorID != nil && *existing.InstructorID == *class.InstructorID
		sameRoom := existing.RoomID != nil && class.RoomID != nil && *existing.RoomID == *class.RoomID
		if !sameInstructor && !sameRoom {
			continue
		}
		if classOverlaps(existing, class.DayOfWeek, class.StartTime, class.EndTime, class.StartDate, toDate) {
			return pkgerrors.ErrBookingExcluded
		}
	}

	if class.ClassID == "" {
		class.ClassID = m.st.nextID("class")
	}
	cp := *class
	m.st.classes = append(m.st.classes, &cp)
	return nil
}

func (m *mockClassRepo) FindInstructorConflict(_ context.Context, instructorID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for _, existing := range m.st.classes {
		if existing.InstructorID == nil || *existing.InstructorID != instructorID {
			continue
		}
		if classOverlaps(existing, dayOfWeek, startTime, endTime, fromDate, toDate) {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockClassRepo) FindRoomConflict(_ context.Context, roomID string, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) (*model.Class, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	for _, existing := range m.st.classes {
		if existing.RoomID == nil || *existing.RoomID != roomID {
			continue
		}
		if classOverlaps(existing, dayOfWeek, startTime, endTime, fromDate, toDate) {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, nil
}

// ── Mock GroupRepository ──

type mockGroupRepo struct{ st *mockStore }

func (m *mockGroupRepo) Create(_ context.Context, group *model.Group) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if group.GroupID == "" {
		group.GroupID = m.st.nextID("group")
	}
	cp := *group
	m.st.groups = append(m.st.groups, &cp)
	return nil
}

// ── Mock EnrollmentRepository ──

type mockEnrollmentRepo struct{ st *mockStore }

func (m *mockEnrollmentRepo) AssignToGroup(_ context.Context, courseLevelID string, studentIDs []string, groupID, classID string) (int64, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	wanted := make(map[string]bool, len(studentIDs))
	for _, sid := range studentIDs {
		wanted[sid] = true
	}
	var affected int64
	for _, e := range m.st.enrollments {
		if e.CourseLevelID == courseLevelID && e.Status == model.EnrollmentStatusActive && wanted[e.StudentID] {
			e.GroupID = &groupID
			e.ClassID = &classID
			affected++
		}
	}
	return affected, nil
}

// ── Mock AuditRepository ──

type mockAuditRepo struct{ st *mockStore }

func (m *mockAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.audits = append(m.st.audits, *log)
	return nil
}

// ── 测试数据构造工具 ──

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func dateOf(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedCourse 写入课程与级别，返回 courseLevelID
func (st *mockStore) seedCourse(courseID, courseName, levelID, levelName string, sortOrder int) string {
	st.courses[courseID] = &model.Course{CourseID: courseID, Name: courseName}
	st.levels[levelID] = &model.CourseLevel{
		CourseLevelID: levelID,
		CourseID:      courseID,
		Name:          levelName,
		SortOrder:     sortOrder,
	}
	return levelID
}

// seedInstructor 写入一个带技能/可用窗口/成本模型的在职教师
func (st *mockStore) seedInstructor(id, name string, skills []string, windows []model.InstructorAvailability, costModels []model.InstructorCostModel) {
	inst := model.Instructor{
		InstructorID: id,
		Name:         name,
		Status:       "active",
		Availability: windows,
		CostModels:   costModels,
	}
	for _, s := range skills {
		inst.Skills = append(inst.Skills, model.InstructorSkill{InstructorID: id, Name: s})
	}
	st.instructors = append(st.instructors, inst)
}

func (st *mockStore) seedRoom(id, name, location string, capacity int, windows []model.RoomAvailability) {
	st.rooms = append(st.rooms, model.Room{
		RoomID:         id,
		Name:           name,
		Location:       location,
		Capacity:       capacity,
		IsActive:       true,
		Availabilities: windows,
	})
}

// [自证通过] internal/service/mock_repos_test.go
