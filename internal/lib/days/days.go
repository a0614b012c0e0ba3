// Package days реализует календарную арифметику для окон доступа:
// подсчет оставшихся дней до истечения пробного периода или бета-доступа.
//
// Остаток всегда округляется вверх до целых суток: если до конца окна
// осталось хотя бы секунда, остаток равен одному дню.
package days

import "time"

// Day длительность одних суток.
const Day = 24 * time.Hour

// Remaining возвращает количество целых дней от now до until,
// округленное вверх. Если until не позже now, возвращает 0.
func Remaining(now, until time.Time) int {
	if !until.After(now) {
		return 0
	}
	d := until.Sub(now)
	n := int(d / Day)
	if d%Day != 0 {
		n++
	}
	return n
}

// RemainingPtr то же, что Remaining, но результат возвращается указателем,
// что удобно для полей ответа, которые могут отсутствовать.
func RemainingPtr(now, until time.Time) *int {
	n := Remaining(now, until)
	return &n
}
