package bufcache_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache"
	"github.com/hupe1980/bufcache/blockdev"
)

func TestLogger_DeviceEventsCarryDevice(t *testing.T) {
	var out bytes.Buffer
	logger := bufcache.NewLogger(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c, err := bufcache.New(1, testBlockSize, bufcache.WithLogger(logger))
	require.NoError(t, err)
	dev := blockdev.NewFaulty(blockdev.NewMemory(testBlockSize, 4), testBlockSize)
	require.NoError(t, c.Mount(testDev, dev, bufcache.MountOptions{}))

	require.NoError(t, c.MarkFailed(testDev))
	require.NoError(t, c.MarkFailed(testDev))
	require.NoError(t, c.Unmount(context.Background(), testDev))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Contains(t, line, "dev=3/0")
	}
	assert.Contains(t, lines[0], `msg="device mounted"`)
	assert.Contains(t, lines[1], `msg="device marked failed"`)
	assert.Contains(t, lines[2], `msg="device invalidated"`)
	assert.Contains(t, lines[3], `msg="device unmounted"`)
}
