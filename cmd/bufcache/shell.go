package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/hupe1980/bufcache"
	"github.com/hupe1980/bufcache/blockdev"
)

var errUsage = errors.New("usage")

var commands = []string{
	"get", "put", "held", "write", "zero", "show", "sync", "flush",
	"invalidate", "prefetch", "resize", "blocksize", "fail", "stats",
	"config", "help", "quit",
}

// Shell runs commands against one mounted device.
type Shell struct {
	c    *bufcache.Cache
	disk *blockdev.Faulty
	cfg  Config
	mc   *bufcache.BasicMetricsCollector
	out  io.Writer

	// held are the buffers pinned with get, per block, oldest first.
	held map[bufcache.BlockNo][]bufcache.Buf
}

// NewShell returns a shell over c with disk mounted as shellDev.
func NewShell(c *bufcache.Cache, disk *blockdev.Faulty, cfg Config, mc *bufcache.BasicMetricsCollector, out io.Writer) *Shell {
	return &Shell{
		c:    c,
		disk: disk,
		cfg:  cfg,
		mc:   mc,
		out:  out,
		held: make(map[bufcache.BlockNo][]bufcache.Buf),
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bufcache_history")
}

// Run starts the interactive loop.
func (s *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.complete)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile()); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(s.out, "bufcache (%s, slots=%d, block_size=%d)\n", s.cfg.Backend, s.cfg.Slots, s.c.BlockSize())
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		input, err := line.Prompt("bufcache> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := s.exec(ctx, input)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

// RunScript executes semicolon-separated commands and stops at the first
// failing one.
func (s *Shell) RunScript(ctx context.Context, script string) error {
	for _, line := range splitScript(script) {
		quit, err := s.exec(ctx, line)
		if err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
		if quit {
			return nil
		}
	}
	return nil
}

// Close releases held buffers, closes the cache and the device.
func (s *Shell) Close(ctx context.Context) error {
	for _, bufs := range s.held {
		for _, b := range bufs {
			_ = s.c.Put(ctx, b, bufcache.Reusable)
		}
	}
	clear(s.held)

	return errors.Join(s.c.Close(ctx), s.disk.Close())
}

func (s *Shell) complete(line string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}
	return out
}

func (s *Shell) exec(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.printHelp()
		return false, nil
	case "get":
		return false, s.cmdGet(ctx, args)
	case "put":
		return false, s.cmdPut(ctx, args)
	case "held":
		s.cmdHeld()
		return false, nil
	case "write":
		return false, s.cmdWrite(ctx, args)
	case "zero":
		return false, s.cmdZero(ctx, args)
	case "show":
		return false, s.cmdShow(ctx, args)
	case "sync":
		return false, s.c.Sync(ctx)
	case "flush":
		return false, s.c.FlushAndInvalidate(ctx, shellDev)
	case "invalidate":
		s.c.Invalidate(ctx, shellDev)
		return false, nil
	case "prefetch":
		return false, s.cmdPrefetch(ctx, args)
	case "resize":
		return false, s.cmdResize(ctx, args)
	case "blocksize":
		return false, s.cmdBlockSize(ctx, args)
	case "fail":
		s.disk.MarkFailed()
		return false, s.c.MarkFailed(shellDev)
	case "stats":
		s.printStats()
		return false, nil
	case "config":
		out, err := FormatConfig(s.cfg)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, out)
		return false, nil
	}

	return false, fmt.Errorf("unknown command %q (type 'help')", cmd)
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  get <blk> [read|noread|prefetch]   pin a block
  put <blk> [reuse|oneshot|immed]... release the oldest pin of a block
  held                               list pinned blocks
  write <blk> <text>                 store text at the start of a block
  zero <blk>                         zero a block
  show <blk> [n]                     hex dump the first n bytes (default 64)
  sync                               write back all dirty blocks
  flush                              write back and drop the device's blocks
  invalidate                         drop the device's blocks unwritten
  prefetch <first> <count>           read ahead a run of blocks
  resize <slots>                     change the number of slots
  blocksize <bytes>                  change the block size
  fail                               mark the device failed
  stats                              show cache statistics
  config                             show the configuration
  help                               show this help
  quit                               exit
`)
}

func parseBlock(s string) (bufcache.BlockNo, error) {
	blk, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("block %q: %w", s, err)
	}
	return blk, nil
}

func parseIntent(s string) (bufcache.Intent, error) {
	for _, i := range []bufcache.Intent{bufcache.ReadThrough, bufcache.NoReadNeeded, bufcache.PrefetchOnly} {
		if i.String() == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("intent %q: want read, noread or prefetch", s)
}

func parseHints(args []string) (bufcache.Hint, error) {
	var h bufcache.Hint
	for _, a := range args {
		switch a {
		case "reuse":
		case "oneshot":
			h |= bufcache.OneShot
		case "immed":
			h |= bufcache.WriteImmediate
		default:
			return 0, fmt.Errorf("hint %q: want reuse, oneshot or immed", a)
		}
	}
	return h, nil
}

func (s *Shell) cmdGet(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: get <blk> [read|noread|prefetch]", errUsage)
	}
	blk, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	intent := bufcache.ReadThrough
	if len(args) == 2 {
		if intent, err = parseIntent(args[1]); err != nil {
			return err
		}
	}

	b, err := s.get(ctx, blk, intent)
	if err != nil {
		return err
	}
	s.held[blk] = append(s.held[blk], b)
	fmt.Fprintf(s.out, "%s pins=%d valid=%v dirty=%v\n", b.ID(), b.Pins(), b.Valid(), b.Dirty())
	return nil
}

// get pins a block. A full cache is reported as an error instead of
// aborting the shell.
func (s *Shell) get(ctx context.Context, blk bufcache.BlockNo, intent bufcache.Intent) (b bufcache.Buf, err error) {
	defer func() {
		if r := recover(); r != nil {
			capErr, ok := r.(*bufcache.CapacityError)
			if !ok {
				panic(r)
			}
			err = capErr
		}
	}()
	return s.c.Get(ctx, shellDev, blk, intent)
}

func (s *Shell) cmdPut(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: put <blk> [reuse|oneshot|immed]...", errUsage)
	}
	blk, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	hint, err := parseHints(args[1:])
	if err != nil {
		return err
	}

	bufs := s.held[blk]
	if len(bufs) == 0 {
		return fmt.Errorf("block %d is not held", blk)
	}
	b := bufs[0]
	if len(bufs) == 1 {
		delete(s.held, blk)
	} else {
		s.held[blk] = bufs[1:]
	}
	return s.c.Put(ctx, b, hint)
}

func (s *Shell) cmdHeld() {
	for _, blk := range slices.Sorted(maps.Keys(s.held)) {
		b := s.held[blk][0]
		fmt.Fprintf(s.out, "%d pins=%d valid=%v dirty=%v\n", blk, b.Pins(), b.Valid(), b.Dirty())
	}
}

// with runs fn on a block, pinning it first unless the shell already
// holds it.
func (s *Shell) with(ctx context.Context, blk bufcache.BlockNo, intent bufcache.Intent, hint bufcache.Hint, fn func(bufcache.Buf)) error {
	if bufs := s.held[blk]; len(bufs) > 0 && bufs[0].Valid() {
		fn(bufs[0])
		return nil
	}
	b, err := s.get(ctx, blk, intent)
	if err != nil {
		return err
	}
	fn(b)
	return s.c.Put(ctx, b, hint)
}

func (s *Shell) cmdWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: write <blk> <text>", errUsage)
	}
	blk, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if len(text) > s.c.BlockSize() {
		return fmt.Errorf("text of %d bytes exceeds block size %d", len(text), s.c.BlockSize())
	}

	return s.with(ctx, blk, bufcache.ReadThrough, bufcache.Reusable, func(b bufcache.Buf) {
		copy(b.Data(), text)
		b.MarkDirty()
	})
}

func (s *Shell) cmdZero(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: zero <blk>", errUsage)
	}
	blk, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	return s.with(ctx, blk, bufcache.NoReadNeeded, bufcache.Reusable, s.c.ZeroFill)
}

func (s *Shell) cmdShow(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: show <blk> [n]", errUsage)
	}
	blk, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	n := 64
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil || n <= 0 {
			return fmt.Errorf("length %q: want a positive number", args[1])
		}
	}
	n = min(n, s.c.BlockSize())

	return s.with(ctx, blk, bufcache.ReadThrough, bufcache.Reusable, func(b bufcache.Buf) {
		fmt.Fprint(s.out, hex.Dump(b.Data()[:n]))
	})
}

func (s *Shell) cmdPrefetch(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: prefetch <first> <count>", errUsage)
	}
	first, err := parseBlock(args[0])
	if err != nil {
		return err
	}
	count, err := strconv.Atoi(args[1])
	if err != nil || count <= 0 {
		return fmt.Errorf("count %q: want a positive number", args[1])
	}

	blocks := make([]bufcache.BlockNo, count)
	for i := range blocks {
		blocks[i] = first + bufcache.BlockNo(i)
	}
	before := s.disk.Reads()
	if err := s.c.Prefetch(ctx, shellDev, blocks); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d device reads\n", s.disk.Reads()-before)
	return nil
}

func (s *Shell) cmdResize(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: resize <slots>", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("slots %q: %w", args[0], err)
	}
	if err := s.c.Resize(ctx, n); err != nil {
		return err
	}
	s.cfg.Slots = n
	return nil
}

func (s *Shell) cmdBlockSize(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: blocksize <bytes>", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("block size %q: %w", args[0], err)
	}
	if err := s.c.SetBlockSize(ctx, n); err != nil {
		return err
	}
	s.cfg.BlockSize = n
	return nil
}

func (s *Shell) printStats() {
	st := s.c.Stats()
	m := s.mc.GetStats()

	fmt.Fprintf(s.out, "slots:        %d (block size %d, generation %d)\n", st.Slots, st.BlockSize, st.Generation)
	fmt.Fprintf(s.out, "free:         %d\n", st.Free)
	fmt.Fprintf(s.out, "pinned:       %d\n", st.Pinned)
	fmt.Fprintf(s.out, "resident:     %d\n", st.Resident)
	fmt.Fprintf(s.out, "dirty:        %d\n", st.Dirty)
	fmt.Fprintf(s.out, "hits:         %d\n", st.Hits)
	fmt.Fprintf(s.out, "misses:       %d\n", st.Misses)
	fmt.Fprintf(s.out, "evictions:    %d (%d discarded)\n", st.Evictions, st.Discarded)
	fmt.Fprintf(s.out, "reads:        %d (%d failed, avg %dns)\n", st.Reads, st.ReadErrors, m.ReadAvgNanos)
	fmt.Fprintf(s.out, "writes:       %d (%d failed, %d blocks, avg %dns)\n", st.Writes, st.WriteErrors, m.WriteBlocks, m.WriteAvgNanos)
	fmt.Fprintf(s.out, "invalidated:  %d\n", st.Invalidated)
	if st.SecondLevel {
		fmt.Fprintf(s.out, "second level: %d hits, %d misses\n", st.L2Hits, st.L2Misses)
	} else {
		fmt.Fprintln(s.out, "second level: off")
	}
	fmt.Fprintf(s.out, "device:       %d reads, %d writes\n", s.disk.Reads(), s.disk.Writes())
}
