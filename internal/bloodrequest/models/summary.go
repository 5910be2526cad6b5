package models

// Summary aggregates request and donation counts for reporting.
type Summary struct {
	ByStatus  map[Status]int `json:"by_status"`
	Total     int            `json:"total_requests"`
	Completed int            `json:"completed_requests"`
	TopDonors []DonorCount   `json:"top_donors"`
}

// FulfillmentRate is the completed share of all requests as a percentage,
// rounded to two decimals. Zero when there are no requests.
func (s Summary) FulfillmentRate() float64 {
	if s.Total == 0 {
		return 0
	}
	rate := float64(s.Completed) / float64(s.Total) * 100
	return float64(int64(rate*100+0.5)) / 100
}
