package mailcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrips(t *testing.T) {
	s := NewSecret([]byte("hunter2"))
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestNilSecretGetsEmptyString(t *testing.T) {
	var s *Secret
	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
