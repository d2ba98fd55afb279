package domain

import "time"

type APIKey struct {
	TokenHash string
	OwnerID   string
	Name      string
	Active    bool
	CreatedAt time.Time
}
