package admin

// StatsResponse is the HTTP response DTO for platform statistics.
type StatsResponse struct {
	TotalUsers        int                 `json:"total_users"`
	VerifiedDonors    int                 `json:"verified_donors"`
	TotalRequests     int                 `json:"total_requests"`
	CompletedRequests int                 `json:"completed_requests"`
	FulfillmentRate   float64             `json:"fulfillment_rate"`
	RequestsByStatus  map[string]int      `json:"requests_by_status"`
	TopDonors         []*TopDonorResponse `json:"top_donors"`
}

// TopDonorResponse ranks a donor by donation count.
type TopDonorResponse struct {
	DonorID   string `json:"donor_id"`
	Donations int    `json:"donations"`
}

// UserResponse is the HTTP response DTO for a directory entry.
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	BloodGroup string `json:"blood_group,omitempty"`
	Verified   bool   `json:"verified"`
}

func toStatsResponse(st Stats) *StatsResponse {
	byStatus := make(map[string]int, len(st.ByStatus))
	for status, n := range st.ByStatus {
		byStatus[string(status)] = n
	}
	top := make([]*TopDonorResponse, 0, len(st.TopDonors))
	for _, d := range st.TopDonors {
		top = append(top, &TopDonorResponse{DonorID: d.DonorID.String(), Donations: d.Count})
	}
	return &StatsResponse{
		TotalUsers:        st.TotalUsers,
		VerifiedDonors:    st.VerifiedDonors,
		TotalRequests:     st.TotalRequests,
		CompletedRequests: st.CompletedRequests,
		FulfillmentRate:   st.FulfillmentRate,
		RequestsByStatus:  byStatus,
		TopDonors:         top,
	}
}

func toUserResponse(u *User) *UserResponse {
	return &UserResponse{
		ID:         u.ID.String(),
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		BloodGroup: u.BloodGroup,
		Verified:   u.Verified,
	}
}
