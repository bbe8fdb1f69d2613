package domain

import "time"

// Owner is the tenant account that SLA policies and tickets belong to.
type Owner struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
