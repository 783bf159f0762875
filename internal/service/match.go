package service

import (
	"strings"
	"time"

	"classpilot/backend/internal/model"
)

// ── 资源匹配：技能 + 每周可用窗口 ──

// instructorHasSkills 判断教师是否具备全部所需技能。
// 比较时两侧均 trim + 小写；required 为空视为无技能要求。
func instructorHasSkills(inst *model.Instructor, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(inst.Skills))
	for _, s := range inst.Skills {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name != "" {
			have[name] = true
		}
	}
	for _, r := range required {
		if !have[strings.ToLower(strings.TrimSpace(r))] {
			return false
		}
	}
	return true
}

// weeklyWindow 教师/教室的每周可用窗口统一形态
type weeklyWindow struct {
	dayOfWeek     int
	startTime     string
	endTime       string
	effectiveFrom *time.Time
	effectiveTo   *time.Time
}

func instructorWindows(inst *model.Instructor) []weeklyWindow {
	windows := make([]weeklyWindow, 0, len(inst.Availability))
	for _, a := range inst.Availability {
		windows = append(windows, weeklyWindow{
			dayOfWeek:     a.DayOfWeek,
			startTime:     a.StartTime,
			endTime:       a.EndTime,
			effectiveFrom: a.EffectiveFrom,
			effectiveTo:   a.EffectiveTo,
		})
	}
	return windows
}

func roomWindows(room *model.Room) []weeklyWindow {
	windows := make([]weeklyWindow, 0, len(room.Availabilities))
	for _, a := range room.Availabilities {
		windows = append(windows, weeklyWindow{
			dayOfWeek:     a.DayOfWeek,
			startTime:     a.StartTime,
			endTime:       a.EndTime,
			effectiveFrom: a.EffectiveFrom,
			effectiveTo:   a.EffectiveTo,
		})
	}
	return windows
}

// windowCovers 判断单个窗口是否完整覆盖目标时段：
// 星期相同、窗口时间包含 [startTime, endTime]、生效日期范围与 [fromDate, toDate] 有交集
func windowCovers(w weeklyWindow, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) bool {
	if w.dayOfWeek != dayOfWeek {
		return false
	}
	ws := strings.TrimSpace(w.startTime)
	we := strings.TrimSpace(w.endTime)
	if !isHHMM(ws) || !isHHMM(we) {
		return false
	}
	if timeToMinutes(ws) > timeToMinutes(startTime) {
		return false
	}
	if timeToMinutes(we) < timeToMinutes(endTime) {
		return false
	}
	if w.effectiveFrom != nil && w.effectiveFrom.After(toDate) {
		return false
	}
	if w.effectiveTo != nil && w.effectiveTo.Before(fromDate) {
		return false
	}
	return true
}

// anyWindowCovers 任意一个窗口覆盖即可
func anyWindowCovers(windows []weeklyWindow, dayOfWeek int, startTime, endTime string, fromDate, toDate time.Time) bool {
	for _, w := range windows {
		if windowCovers(w, dayOfWeek, startTime, endTime, fromDate, toDate) {
			return true
		}
	}
	return false
}

// [自证通过] internal/service/match.go
