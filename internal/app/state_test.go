package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthoringStateActive(t *testing.T) {
	cases := []struct {
		state AuthoringState
		want  bool
	}{
		{"", false},
		{AuthoringIdle, false},
		{AuthoringDrafting, true},
		{AuthoringOptimizing, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.state.Active(), "state %q", tc.state)
	}
}
