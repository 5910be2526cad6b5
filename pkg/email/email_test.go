package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com":        "Jane Doe",
		"JOHN_SMITH@example.com":      "John Smith",
		"ana-maria+blood@example.com": "Ana Maria",
		"solo@example.com":            "Solo",
		"@example.com":                "Donor",
		"...@example.com":             "Donor",
	}
	for in, want := range cases {
		assert.Equal(t, want, DisplayName(in), in)
	}
}
