package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Team X!!", "team-x"},
		{"My Team", "my-team"},
		{"  Acme  Corp  ", "acme-corp"},
		{"already-a-slug", "already-a-slug"},
		{"Über Team", "ber-team"},
		{"___", ""},
		{"", ""},
		{"--trim--me--", "trim--me"},
		{"UPPER", "upper"},
		{"a!!b??c", "a-b-c"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "Slugify(%q)", tc.in)
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{"Team X!!", "My Team", "plain", "a b c"}
	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), "slug of %q must be stable", in)
	}
}
