package models

import "time"

// RefreshTokenRecord is the server-side half of a refresh token. A token is only
// authoritative while a record with its family and version exists and is unexpired.
type RefreshTokenRecord struct {
	Family    string    `json:"family"`
	Version   string    `json:"version"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type User struct {
	ID             string
	Email          string
	PasswordHash   string
	SessionRecords []RefreshTokenRecord
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionRecord returns the record of the given family, if the user holds one.
func (u *User) SessionRecord(family string) (RefreshTokenRecord, bool) {
	for _, r := range u.SessionRecords {
		if r.Family == family {
			return r, true
		}
	}
	return RefreshTokenRecord{}, false
}

// Public strips everything the client must not see.
func (u *User) Public() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
