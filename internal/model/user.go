package model

import "time"

type Partner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserProfile.ActualPartner indexes into Partners.
type UserProfile struct {
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Partners         []Partner `json:"partners,omitempty"`
	ActualPartner    *int      `json:"actualPartner,omitempty"`
	BiometricEnabled bool      `json:"biometricEnabled"`
}

type User struct {
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
	Profile   *UserProfile `json:"profile,omitempty"`
}
