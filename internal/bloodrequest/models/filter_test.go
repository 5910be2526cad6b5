package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

func TestParseFilter(t *testing.T) {
	caller := id.UserID(uuid.New())

	t.Run("defaults", func(t *testing.T) {
		f, err := ParseFilter(FilterInput{}, caller, 50)
		require.NoError(t, err)
		assert.Equal(t, OrderNewestFirst, f.Order)
		assert.Equal(t, 50, f.Limit)
		assert.Equal(t, caller, f.Exclude)
	})

	t.Run("caps the limit", func(t *testing.T) {
		f, err := ParseFilter(FilterInput{Limit: 500}, caller, 50)
		require.NoError(t, err)
		assert.Equal(t, 50, f.Limit)
	})

	t.Run("rejects unknown ordering", func(t *testing.T) {
		_, err := ParseFilter(FilterInput{Ordering: "urgency"}, caller, 50)
		assert.Equal(t, "ordering", dErrors.FieldOf(err))
	})

	t.Run("rejects unknown blood group", func(t *testing.T) {
		_, err := ParseFilter(FilterInput{BloodGroup: "Z"}, caller, 50)
		assert.Equal(t, "blood_group", dErrors.FieldOf(err))
	})
}

func TestListFilterMatches(t *testing.T) {
	r := newTestRequest(t, NewRequest{BloodGroup: "B-", Quantity: 1, Location: "Leeds General", Details: "post-surgery", Urgency: "high"})

	assert.True(t, ListFilter{}.Matches(r))
	assert.False(t, ListFilter{Exclude: r.RequesterID}.Matches(r))
	assert.True(t, ListFilter{BloodGroup: id.BloodGroupBNeg, Urgency: UrgencyHigh}.Matches(r))
	assert.False(t, ListFilter{BloodGroup: id.BloodGroupBPos}.Matches(r))
	assert.True(t, ListFilter{Search: "leeds"}.Matches(r))
	assert.True(t, ListFilter{Search: "SURGERY"}.Matches(r))
	assert.False(t, ListFilter{Search: "york"}.Matches(r))

	r.ApplyTransition(StatusCancelled, now)
	assert.False(t, ListFilter{}.Matches(r))
}

func TestSummaryFulfillmentRate(t *testing.T) {
	assert.Zero(t, Summary{}.FulfillmentRate())
	assert.InDelta(t, 33.33, Summary{Total: 3, Completed: 1}.FulfillmentRate(), 0.001)
	assert.InDelta(t, 100.0, Summary{Total: 2, Completed: 2}.FulfillmentRate(), 0.001)
}
