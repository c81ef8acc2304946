package runid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsNonEmptyAndUnique(t *testing.T) {
	a := New()
	b := New()
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}
