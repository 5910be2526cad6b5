package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil stays nil", in: nil, want: nil},
		{name: "keeps first-seen order", in: []string{"b", "a", "b"}, want: []string{"b", "a"}},
		{name: "trims before comparing", in: []string{" id-1 ", "id-1", "\tid-2"}, want: []string{"id-1", "id-2"}},
		{name: "drops blanks", in: []string{"", "  ", "x"}, want: []string{"x"}},
		{name: "case sensitive", in: []string{"A", "a"}, want: []string{"A", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.in))
		})
	}
}
