package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	require.Equal(t, 100, ClampLimit(0, 100))
	require.Equal(t, 100, ClampLimit(-5, 100))
	require.Equal(t, 100, ClampLimit(MaxListLimit+1, 100))
	require.Equal(t, 25, ClampLimit(25, 100))
	require.Equal(t, MaxListLimit, ClampLimit(MaxListLimit, 100))
}
