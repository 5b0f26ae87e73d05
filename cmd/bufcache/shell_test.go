package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache"
)

func memoryConfig(slots int) Config {
	cfg := DefaultConfig()
	cfg.Backend = "memory"
	cfg.Slots = slots
	cfg.BlockSize = 512
	cfg.Blocks = 32
	return cfg
}

func newTestShell(t *testing.T, cfg Config) (*Shell, *bytes.Buffer) {
	t.Helper()
	var out, logs bytes.Buffer
	sh, err := open(context.Background(), cfg, "", &out, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sh.Close(context.Background()) })
	return sh, &out
}

func TestRun_Script(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"-b", "memory", "-n", "4", "-s", "512", "--blocks", "16",
		"-c", "write 1 hello world; show 1 16; stats",
	}, &out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "|hello world")
	assert.Contains(t, out.String(), "dirty:        1")
}

func TestRun_ConfigFileAndFlags(t *testing.T) {
	path := writeConfig(t, `{"backend": "memory", "slots": 2, "block_size": 1024}`)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"--config", path, "--slots", "3", "-c", "config",
	}, &out, &errOut)

	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), `"slots": 3`)
	assert.Contains(t, out.String(), `"block_size": 1024`)
}

func TestRun_InvalidConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-b", "memory", "--block-size", "100", "-c", "stats"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "block_size")
}

func TestRun_MissingTarget(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-c", "stats"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), errNoTarget.Error())
}

func TestRun_ScriptError(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-b", "memory", "-c", "put 7"}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "block 7 is not held")
}

func TestRun_FileBackend(t *testing.T) {
	image := filepath.Join(t.TempDir(), "disk.img")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"-s", "512", "--blocks", "8", "-c", "write 2 minix; sync", image,
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	data, err := os.ReadFile(image)
	require.NoError(t, err)
	require.Len(t, data, 8*512)
	assert.Equal(t, "minix", string(data[2*512:2*512+5]))
}

func TestShell_GetPut(t *testing.T) {
	sh, out := newTestShell(t, memoryConfig(2))
	ctx := context.Background()

	require.NoError(t, sh.RunScript(ctx, "get 5; get 5 noread"))
	assert.Contains(t, out.String(), "3/0#5 pins=2")
	assert.Equal(t, 1, sh.c.Stats().Pinned)

	out.Reset()
	require.NoError(t, sh.RunScript(ctx, "held"))
	assert.Equal(t, "5 pins=2 valid=true dirty=false\n", out.String())

	require.NoError(t, sh.RunScript(ctx, "put 5 oneshot; put 5"))
	assert.Zero(t, sh.c.Stats().Pinned)
	assert.Empty(t, sh.held)
}

func TestShell_CapacityIsAnError(t *testing.T) {
	sh, _ := newTestShell(t, memoryConfig(1))
	ctx := context.Background()

	require.NoError(t, sh.RunScript(ctx, "get 0"))
	err := sh.RunScript(ctx, "get 1")
	require.ErrorIs(t, err, bufcache.ErrAllInUse)

	require.NoError(t, sh.RunScript(ctx, "put 0; get 1; put 1"))
}

func TestShell_WriteUsesHeldBuffer(t *testing.T) {
	sh, out := newTestShell(t, memoryConfig(2))
	ctx := context.Background()

	require.NoError(t, sh.RunScript(ctx, "get 3; write 3 abc"))
	assert.True(t, sh.held[3][0].Dirty())
	assert.Equal(t, 1, sh.held[3][0].Pins())

	out.Reset()
	require.NoError(t, sh.RunScript(ctx, "put 3 immed; stats"))
	assert.Contains(t, out.String(), "dirty:        0")
	assert.Equal(t, 1, sh.disk.Writes())
}

func TestShell_ZeroAndFlush(t *testing.T) {
	sh, _ := newTestShell(t, memoryConfig(4))
	ctx := context.Background()

	require.NoError(t, sh.RunScript(ctx, "write 1 x; zero 1; flush"))
	st := sh.c.Stats()
	assert.Zero(t, st.Resident)
	assert.Zero(t, st.Dirty)
	assert.Equal(t, 1, sh.disk.Writes())
}

func TestShell_Prefetch(t *testing.T) {
	sh, out := newTestShell(t, memoryConfig(8))

	require.NoError(t, sh.RunScript(context.Background(), "prefetch 4 3"))
	assert.Equal(t, "1 device reads\n", out.String())
	assert.Equal(t, 3, sh.c.Stats().Resident)
}

func TestShell_ResizeAndBlockSize(t *testing.T) {
	sh, _ := newTestShell(t, memoryConfig(2))
	ctx := context.Background()

	require.NoError(t, sh.RunScript(ctx, "resize 6; blocksize 1024"))
	st := sh.c.Stats()
	assert.Equal(t, 6, st.Slots)
	assert.Equal(t, 1024, st.BlockSize)
	assert.Equal(t, 6, sh.cfg.Slots)

	require.NoError(t, sh.RunScript(ctx, "get 0 noread"))
	require.ErrorIs(t, sh.RunScript(ctx, "resize 3"), bufcache.ErrBusy)
}

func TestShell_SecondLevel(t *testing.T) {
	// RAM disks bypass the second level.
	cfg := memoryConfig(1)
	cfg.L2Mem = 1 << 16
	sh, out := newTestShell(t, cfg)

	require.NoError(t, sh.RunScript(context.Background(), "show 0; show 1; stats"))
	assert.Contains(t, out.String(), "second level: 0 hits, 0 misses")

	cfg = memoryConfig(1)
	cfg.Backend = "local"
	cfg.L2Mem = 1 << 16
	var logs bytes.Buffer
	out.Reset()
	sh2, err := open(context.Background(), cfg, t.TempDir(), out, &logs)
	require.NoError(t, err)
	defer sh2.Close(context.Background())

	require.NoError(t, sh2.RunScript(context.Background(), "show 0; show 1; show 0; stats"))
	assert.Contains(t, out.String(), "second level: 1 hits, 2 misses")
}

func TestShell_UnknownCommand(t *testing.T) {
	sh, _ := newTestShell(t, memoryConfig(1))

	err := sh.RunScript(context.Background(), "defrag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	require.ErrorIs(t, sh.RunScript(context.Background(), "get"), errUsage)
}

func TestShell_Complete(t *testing.T) {
	sh, _ := newTestShell(t, memoryConfig(1))
	assert.Equal(t, []string{"show", "sync", "stats"}, sh.complete("s"))
}

func TestShell_Help(t *testing.T) {
	sh, out := newTestShell(t, memoryConfig(1))
	require.NoError(t, sh.RunScript(context.Background(), "help"))
	for _, cmd := range commands {
		assert.True(t, strings.Contains(out.String(), "  "+cmd), cmd)
	}
}
