package models

import "time"

// OrderTransition is the append-only audit trail of order state changes.
type OrderTransition struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	OrderID   string     `gorm:"type:char(36);not null;index" json:"order_id"`
	FromState OrderState `gorm:"type:varchar(32);not null" json:"from_state"`
	ToState   OrderState `gorm:"type:varchar(32);not null" json:"to_state"`
	Reason    string     `gorm:"type:varchar(255)" json:"reason"`
	Attempt   int        `gorm:"not null;default:0" json:"attempt"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
