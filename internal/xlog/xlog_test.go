package xlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusWritesLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)
	l.Status("hello %d", 7)
	require.Contains(t, buf.String(), "hello 7")
}

func TestWarningAndErrorAreTagged(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)
	l.Warning("careful")
	l.Error("boom")
	out := buf.String()
	require.Contains(t, out, "WARN")
	require.Contains(t, out, "careful")
	require.Contains(t, out, "ERROR")
	require.Contains(t, out, "boom")
}

func TestTagGoesToItsOwnWriter(t *testing.T) {
	var status, tag bytes.Buffer
	l := New(&status, &tag)
	l.Tag("block=%d", 3)
	require.Empty(t, status.String())
	require.True(t, strings.Contains(tag.String(), "block=3"))
}

func TestProgressWithoutCallbackNeverAborts(t *testing.T) {
	l := NewDiscard()
	require.False(t, l.Progress(1, 1, 10))
}

func TestProgressCallbackControlsAbort(t *testing.T) {
	l := NewDiscard()
	var gotBlock, gotDone, gotTotal uint32
	l.SetProgress(func(block, done, total uint32) bool {
		gotBlock, gotDone, gotTotal = block, done, total
		return block >= 5
	})
	require.False(t, l.Progress(1, 1, 10))
	require.True(t, l.Progress(5, 5, 10))
	require.Equal(t, uint32(5), gotBlock)
	require.Equal(t, uint32(5), gotDone)
	require.Equal(t, uint32(10), gotTotal)
}

func TestNewDiscardSwallowsEverything(t *testing.T) {
	l := NewDiscard()
	l.Status("x")
	l.Warning("y")
	l.Error("z")
	l.Tag("w")
	l.Flush()
}
