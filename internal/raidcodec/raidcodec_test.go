package raidcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenThenRecRoundTrip(t *testing.T) {
	c := New()
	const diskmax, level, blockSize = 4, 2, 64

	buffer := make([][]byte, diskmax+level)
	for j := 0; j < diskmax; j++ {
		buffer[j] = bytes.Repeat([]byte{byte(j + 1)}, blockSize)
	}
	for l := 0; l < level; l++ {
		buffer[diskmax+l] = make([]byte, blockSize)
	}

	require.NoError(t, c.Gen(diskmax, level, buffer))

	original := make([][]byte, diskmax)
	for j := range original {
		original[j] = append([]byte(nil), buffer[j]...)
	}

	// destroy up to `level` data shards
	failedMap := []int{0, 2}
	for _, idx := range failedMap {
		Zero(buffer[idx])
	}

	require.NoError(t, c.Rec(failedMap, diskmax, level, buffer))

	for _, idx := range failedMap {
		require.Equal(t, original[idx], buffer[idx])
	}
}

func TestEncoderCacheReusedByShape(t *testing.T) {
	c := New()
	e1, err := c.encoder(3, 1)
	require.NoError(t, err)
	e2, err := c.encoder(3, 1)
	require.NoError(t, err)
	require.True(t, e1 == e2)
}

func TestRecRejectsTooManyFailures(t *testing.T) {
	c := New()
	buffer := make([][]byte, 4)
	for i := range buffer {
		buffer[i] = make([]byte, 16)
	}
	err := c.Rec([]int{0, 1, 2}, 3, 1, buffer)
	require.Error(t, err)
}

func TestZero(t *testing.T) {
	buf := bytes.Repeat([]byte{1}, 32)
	Zero(buf)
	require.Equal(t, make([]byte, 32), buf)
}
