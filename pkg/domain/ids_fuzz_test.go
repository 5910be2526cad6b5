package domain

import (
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FuzzParseRequestID checks that parsing never panics and that anything it
// accepts is a non-nil id that round-trips.
func FuzzParseRequestID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE blood_requests;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRequestID(input)
		if err != nil {
			return
		}
		if uuid.UUID(id) == uuid.Nil {
			t.Error("nil UUID was accepted")
		}
		roundTrip, err := ParseRequestID(id.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures every id type applies the same validation.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errUser := ParseUserID(input)
		_, errRequest := ParseRequestID(input)
		_, errDonation := ParseDonationID(input)
		_, errNotification := ParseNotificationID(input)

		accepted := errUser == nil
		if (errRequest == nil) != accepted || (errDonation == nil) != accepted || (errNotification == nil) != accepted {
			t.Errorf("inconsistent parsing across id types for %q", input)
		}
	})
}

// FuzzParseBloodGroup checks that only the eight supported groups parse.
func FuzzParseBloodGroup(f *testing.F) {
	for g := range validBloodGroups {
		f.Add(string(g))
	}
	f.Add("")
	f.Add("o+")
	f.Add("AB")
	f.Add("O+ ")

	f.Fuzz(func(t *testing.T, input string) {
		g, err := ParseBloodGroup(input)
		if err != nil {
			return
		}
		if !validBloodGroups[g] || string(g) != input {
			t.Errorf("unexpected blood group %q accepted", input)
		}
	})
}
