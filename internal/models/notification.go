package models

import "time"

// TrialExpiryInfo данные для уведомления об истекающем сегодня
// пробном периоде. Публикуется планировщиком в очередь уведомлений.
type TrialExpiryInfo struct {
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Platform     Platform  `json:"platform"`
	TrialEndDate time.Time `json:"trial_end_date"`
}
