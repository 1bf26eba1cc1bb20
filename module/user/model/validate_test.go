package model

import (
	"strings"
	"testing"

	"VoiceGate/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsername(t *testing.T) {
	name, err := NormalizeUsername("  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	for _, bad := range []string{"", "   ", "a/b", "a?b", strings.Repeat("x", MaxUsernameLen+1)} {
		_, err := NormalizeUsername(bad)
		assert.ErrorIs(t, err, errs.ErrValidation, "input %q", bad)
	}

	_, err = NormalizeUsername(strings.Repeat("x", MaxUsernameLen))
	assert.NoError(t, err)
}

func TestUserConnected(t *testing.T) {
	id := "A1"
	empty := ""
	assert.True(t, User{ClientID: &id}.Connected())
	assert.False(t, User{ClientID: &empty}.Connected())
	assert.False(t, User{}.Connected())
	assert.Equal(t, "", User{}.ClientIDOrEmpty())
}
