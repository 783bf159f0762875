package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrBookingExcluded 排它约束冲突：教师或教室在该时段已被并发确认占用
// 由存储层的 EXCLUDE 约束触发，是确认提交防双重预订的最后一道防线
var ErrBookingExcluded = errors.New("教师或教室在该时段已被其他确认占用")
