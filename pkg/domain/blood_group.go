package domain

import dErrors "hemogrid/pkg/domain-errors"

// BloodGroup is an ABO/Rh blood group.
// Invariant: the value must be one of the eight supported groups.
//
// Usage: construct via ParseBloodGroup at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type BloodGroup string

const (
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
)

var validBloodGroups = map[BloodGroup]bool{
	BloodGroupOPos:  true,
	BloodGroupONeg:  true,
	BloodGroupAPos:  true,
	BloodGroupANeg:  true,
	BloodGroupBPos:  true,
	BloodGroupBNeg:  true,
	BloodGroupABPos: true,
	BloodGroupABNeg: true,
}

// ParseBloodGroup constructs a BloodGroup from external input.
//
// Errors: returns CodeValidation with field "blood_group" when the value is
// empty or not one of the supported groups.
func ParseBloodGroup(s string) (BloodGroup, error) {
	if s == "" {
		return "", dErrors.NewField(dErrors.CodeValidation, "blood_group", "blood group is required")
	}
	g := BloodGroup(s)
	if !g.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, "blood_group", "unsupported blood group "+s)
	}
	return g, nil
}

// IsValid checks if the blood group is one of the supported values.
func (g BloodGroup) IsValid() bool {
	return validBloodGroups[g]
}

func (g BloodGroup) String() string {
	return string(g)
}
