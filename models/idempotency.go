package models

import "time"

// IdempotencyKey stores the first completed response for a given request hash.
// Keys are unique per account.
type IdempotencyKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	AccountId      string     `json:"account_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_idempotency_account_key,priority:1"`
	Key            string     `json:"key" gorm:"size:128;not null;uniqueIndex:idx_idempotency_account_key,priority:2"`
	RequestHash    string     `json:"request_hash" gorm:"size:64"` // sha256 of method|path|body|account|user
	Method         string     `json:"method" gorm:"size:10"`
	Path           string     `json:"path" gorm:"size:255"`
	UserID         string     `json:"user_id" gorm:"size:128"`
	ResponseStatus int        `json:"response_status"`     // 0 => not completed yet
	ResponseBody   []byte     `json:"-" gorm:"type:bytea"` // raw response body (JSON)
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}
