package models

import "time"

type Account struct {
	ID               int64     `json:"id"`
	ItemID           int64     `json:"item_id"`
	AccountID        string    `json:"account_id"`
	Name             string    `json:"name"`
	OfficialName     *string   `json:"official_name"`
	Mask             *string   `json:"mask"`
	Type             string    `json:"type"`
	Subtype          *string   `json:"subtype"`
	CurrentBalance   *float64  `json:"current_balance"`
	AvailableBalance *float64  `json:"available_balance"`
	CreatedAt        time.Time `json:"created_at"`
}
