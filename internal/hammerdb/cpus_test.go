package hammerdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCPUs(t *testing.T) {
	n, err := LocalCPUs{}.NumberOfCPUs(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestFixedCPUs(t *testing.T) {
	n, err := FixedCPUs(8).NumberOfCPUs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = FixedCPUs(0).NumberOfCPUs(context.Background())
	assert.Error(t, err)
}
