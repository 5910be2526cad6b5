package models

import (
	"strings"
	"time"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/email"
)

// Role is a user's standing in the directory.
type Role string

const (
	RoleRequester Role = "requester"
	RoleDonor     Role = "donor"
	RoleAdmin     Role = "admin"
)

var validRoles = map[Role]bool{
	RoleRequester: true,
	RoleDonor:     true,
	RoleAdmin:     true,
}

// ParseRole parses a role from external input. Empty input means requester.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleRequester, nil
	}
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.NewField(dErrors.CodeValidation, "role", "unsupported role "+s)
	}
	return r, nil
}

// Availability is a donor's self-reported availability.
type Availability string

const (
	AvailabilityAvailable    Availability = "available"
	AvailabilityNotAvailable Availability = "not_available"
	AvailabilityBusy         Availability = "busy"
)

var validAvailability = map[Availability]bool{
	AvailabilityAvailable:    true,
	AvailabilityNotAvailable: true,
	AvailabilityBusy:         true,
}

// ParseAvailability parses an availability status from external input.
func ParseAvailability(s string) (Availability, error) {
	a := Availability(s)
	if !validAvailability[a] {
		return "", dErrors.NewField(dErrors.CodeValidation, "availability_status", "availability must be one of available, not_available, busy")
	}
	return a, nil
}

// Donor is a user as seen by the matching engine.
//
// Invariants:
//   - Availability is one of the three enumerated values
//   - IsCurrentlyAvailable is the only availability predicate used for matching
type Donor struct {
	ID           id.UserID     `json:"id"`
	Email        string        `json:"email"`
	FullName     string        `json:"full_name"`
	Role         Role          `json:"role"`
	IsVerified   bool          `json:"is_verified"`
	Availability Availability  `json:"availability_status"`
	BloodGroup   id.BloodGroup `json:"blood_group,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewDonor validates and builds a directory entry.
func NewDonor(userID id.UserID, address, fullName string, role Role, bloodGroup id.BloodGroup, now time.Time) (*Donor, error) {
	address = strings.TrimSpace(strings.ToLower(address))
	if address == "" || !strings.Contains(address, "@") {
		return nil, dErrors.NewField(dErrors.CodeValidation, "email", "a valid email is required")
	}
	if bloodGroup != "" && !bloodGroup.IsValid() {
		return nil, dErrors.NewField(dErrors.CodeValidation, "blood_group", "unsupported blood group")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = email.DisplayName(address)
	}
	availability := AvailabilityNotAvailable
	if role == RoleDonor {
		availability = AvailabilityAvailable
	}
	return &Donor{
		ID:           userID,
		Email:        address,
		FullName:     fullName,
		Role:         role,
		Availability: availability,
		BloodGroup:   bloodGroup,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsCurrentlyAvailable is the canonical availability predicate.
func (d *Donor) IsCurrentlyAvailable() bool {
	return d.Availability == AvailabilityAvailable
}

// IsEligibleFor reports whether the donor should be notified about a request
// for bloodGroup.
func (d *Donor) IsEligibleFor(bloodGroup id.BloodGroup) bool {
	return d.Role == RoleDonor &&
		d.IsVerified &&
		d.IsCurrentlyAvailable() &&
		d.BloodGroup == bloodGroup
}

// NeedsPromotion reports whether creating a request should upgrade the user
// to donor. Admins keep their role.
func (d *Donor) NeedsPromotion() bool {
	return d.Role == RoleRequester
}

// ApplyPromotion upgrades a requester to an available donor. No-op otherwise.
func (d *Donor) ApplyPromotion(now time.Time) {
	if !d.NeedsPromotion() {
		return
	}
	d.Role = RoleDonor
	d.Availability = AvailabilityAvailable
	d.UpdatedAt = now
}

// ApplyAvailability records a new availability status.
func (d *Donor) ApplyAvailability(a Availability, now time.Time) {
	d.Availability = a
	d.UpdatedAt = now
}

// ApplyVerification marks the user verified.
func (d *Donor) ApplyVerification(now time.Time) {
	d.IsVerified = true
	d.UpdatedAt = now
}

// Counts summarises the directory for reporting.
type Counts struct {
	TotalUsers     int `json:"total_users"`
	VerifiedDonors int `json:"verified_donors"`
}
