package models

import (
	"time"
)

// Registration is a completed onboarding registration for a community member.
type Registration struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	FullName    string    `json:"full_name"`
	Handle      string    `json:"handle"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
