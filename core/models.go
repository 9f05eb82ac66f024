package core

import "time"

// Provider identifies an OAuth identity provider.
type Provider string

const (
	ProviderNaver Provider = "naver"
)

// User is the profile record kept in the user directory, keyed by the
// provider's stable user id.
type User struct {
	UserID    string
	UserName  string
	UserImage string
	CreatedAt time.Time
	UpdatedAt time.Time
}
