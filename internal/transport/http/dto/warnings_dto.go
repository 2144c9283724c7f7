package dto

import "time"

type WarningsResponse struct {
	ChatID        int64      `json:"chat_id"`
	UserID        int64      `json:"user_id"`
	Count         int        `json:"count"`
	LastWarningAt *time.Time `json:"last_warning_at"`
	Exists        bool       `json:"exists"`
}
