package entity

import "time"

// Approver is a directory entry. (Level, Country) is unique.
type Approver struct {
	ID        int64     `json:"id"`
	Level     int       `json:"level"`
	Country   string    `json:"country"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
