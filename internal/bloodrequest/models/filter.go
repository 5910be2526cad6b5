package models

import (
	"strings"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

// Ordering of listings by creation time.
type Ordering string

const (
	OrderNewestFirst Ordering = "-created_at"
	OrderOldestFirst Ordering = "created_at"
)

// ListFilter narrows the active-request listing.
type ListFilter struct {
	Exclude    id.UserID
	BloodGroup id.BloodGroup
	Urgency    Urgency
	Search     string
	Order      Ordering
	Limit      int
	Offset     int
}

// FilterInput is the unparsed listing query.
type FilterInput struct {
	BloodGroup string
	Urgency    string
	Search     string
	Ordering   string
	Limit      int
	Offset     int
}

// ParseFilter validates listing parameters. Empty values mean "any".
func ParseFilter(in FilterInput, exclude id.UserID, maxLimit int) (ListFilter, error) {
	f := ListFilter{
		Exclude: exclude,
		Search:  strings.TrimSpace(in.Search),
		Order:   OrderNewestFirst,
		Limit:   in.Limit,
		Offset:  in.Offset,
	}
	if in.BloodGroup != "" {
		g, err := id.ParseBloodGroup(in.BloodGroup)
		if err != nil {
			return ListFilter{}, err
		}
		f.BloodGroup = g
	}
	if in.Urgency != "" {
		u, err := ParseUrgency(in.Urgency)
		if err != nil {
			return ListFilter{}, err
		}
		f.Urgency = u
	}
	switch Ordering(in.Ordering) {
	case "", OrderNewestFirst:
	case OrderOldestFirst:
		f.Order = OrderOldestFirst
	default:
		return ListFilter{}, dErrors.NewField(dErrors.CodeValidation, "ordering", "ordering must be created_at or -created_at")
	}
	if f.Offset < 0 {
		return ListFilter{}, dErrors.NewField(dErrors.CodeValidation, "offset", "offset must not be negative")
	}
	if f.Limit <= 0 || (maxLimit > 0 && f.Limit > maxLimit) {
		f.Limit = maxLimit
	}
	return f, nil
}

// Matches applies the filter to one request. Stores without a query engine
// use it; SQL stores express the same predicate in WHERE.
func (f ListFilter) Matches(r *BloodRequest) bool {
	if !r.IsActive || r.RequesterID == f.Exclude {
		return false
	}
	if f.BloodGroup != "" && r.BloodGroup != f.BloodGroup {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Location), needle) &&
			!strings.Contains(strings.ToLower(r.Details), needle) {
			return false
		}
	}
	return true
}

// Page bounds an unfiltered listing.
type Page struct {
	Limit  int
	Offset int
}
