package model

import "time"

// 注文は作成後に変更しない。emailも作成時点のスナップショット。
type Order struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	UserEmail      string    `gorm:"type:varchar(255);not null" json:"user_email"`
	TotalPrice     int64     `gorm:"not null" json:"total_price"`
	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
