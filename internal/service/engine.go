package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"classpilot/backend/internal/model"
)

// ── 时间工具 ──

var hhmmPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

// isHHMM 校验 HH:mm 文本格式
func isHHMM(v string) bool {
	return hhmmPattern.MatchString(strings.TrimSpace(v))
}

// timeToMinutes 将 HH:mm 转为当天分钟数；调用方需先用 isHHMM 校验
func timeToMinutes(hhmm string) int {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

// ── 时段聚类 ──

// timeCluster 按精确 (星期|起|止) 键聚出的学员集合
type timeCluster struct {
	DayOfWeek  int
	StartTime  string
	EndTime    string
	StudentIDs []string
}

// Key 聚类键，也写入解释信息
func (c *timeCluster) Key() string {
	return fmt.Sprintf("%d|%s|%s", c.DayOfWeek, c.StartTime, c.EndTime)
}

// clusterAvailability 对需求内学员的每周可用时段做精确键聚类。
// 非法时段（星期越界、非 HH:mm、起止颠倒）静默跳过，不让单个脏条目毁掉整个批次。
// 结果按学员数降序；同数时按键升序，保证输出与遍历顺序无关。
func clusterAvailability(studentIDs []string, availability model.AvailabilityMap) []timeCluster {
	index := make(map[string]*timeCluster)

	for _, sid := range studentIDs {
		for _, slot := range availability[sid] {
			from := strings.TrimSpace(slot.From)
			to := strings.TrimSpace(slot.To)
			if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
				continue
			}
			if !isHHMM(from) || !isHHMM(to) {
				continue
			}
			if timeToMinutes(from) >= timeToMinutes(to) {
				continue
			}

			key := fmt.Sprintf("%d|%s|%s", slot.DayOfWeek, from, to)
			if existing, ok := index[key]; ok {
				existing.StudentIDs = append(existing.StudentIDs, sid)
			} else {
				index[key] = &timeCluster{
					DayOfWeek:  slot.DayOfWeek,
					StartTime:  from,
					EndTime:    to,
					StudentIDs: []string{sid},
				}
			}
		}
	}

	clusters := make([]timeCluster, 0, len(index))
	for _, c := range index {
		clusters = append(clusters, *c)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].StudentIDs) != len(clusters[j].StudentIDs) {
			return len(clusters[i].StudentIDs) > len(clusters[j].StudentIDs)
		}
		return clusters[i].Key() < clusters[j].Key()
	})
	return clusters
}

// ── 容量切分 ──

// partitionByCapacity 将聚类学员按 maxCapacity 顺序切块，最后一块可以不满
func partitionByCapacity(studentIDs []string, maxCapacity int) [][]string {
	if len(studentIDs) == 0 || maxCapacity < 1 {
		return nil
	}
	return lo.Chunk(studentIDs, maxCapacity)
}

// [自证通过] internal/service/engine.go
