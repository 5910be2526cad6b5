package admin

import id "hemogrid/pkg/domain"

// User is the admin view of a directory entry.
type User struct {
	ID         id.UserID
	Email      string
	FullName   string
	Role       string
	BloodGroup string
	Verified   bool
}

// DirectoryCounts summarises the user directory.
type DirectoryCounts struct {
	TotalUsers     int
	VerifiedDonors int
}

// NewUser carries the attributes of a user mirrored from the identity provider.
type NewUser struct {
	UserID     id.UserID
	Email      string
	FullName   string
	Role       string
	BloodGroup string
	Verified   bool
}
