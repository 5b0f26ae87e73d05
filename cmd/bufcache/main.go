// bufcache is an interactive shell over a block buffer cache.
//
// Usage:
//
//	bufcache [flags] [target]
//
// target is an image file (file backend), a directory (local backend) or a
// bucket (minio and s3 backends). The memory backend needs no target.
//
// Flags:
//
//	    --config        JSONC config file
//	-b, --backend       file, memory, local, minio or s3 (default: file)
//	-n, --slots         number of cache slots (default: 256)
//	-s, --block-size    block size in bytes (default: 4096)
//	    --blocks        device size in blocks (default: 1024)
//	    --prefix        object key prefix for blob backends
//	    --l2-dir        directory of an on-disk second-level cache
//	    --l2-mem        byte capacity of an in-memory second-level cache
//	    --l2-codec      compression of on-disk entries: none, lz4 or zstd
//	    --memory-limit  memory budget shared by slots and l2-mem
//	    --io-limit      device bandwidth cap in bytes per second
//	    --log-level     debug, info, warn or error
//	    --json-log      log as JSON
//	-c, --command       run semicolon-separated commands and exit
//
// Type 'help' in the shell for its commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hupe1980/bufcache"
	"github.com/hupe1980/bufcache/blockdev"
	"github.com/hupe1980/bufcache/resource"
)

// shellDev is the device number the target is mounted as.
var shellDev = bufcache.MakeDev(3, 0)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bufcache", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := DefaultConfig()
	configPath := fs.String("config", "", "JSONC config file")
	backend := fs.StringP("backend", "b", defaults.Backend, "file, memory, local, minio or s3")
	slots := fs.IntP("slots", "n", defaults.Slots, "number of cache slots")
	blockSize := fs.IntP("block-size", "s", defaults.BlockSize, "block size in bytes")
	blocks := fs.Int64("blocks", defaults.Blocks, "device size in blocks")
	prefix := fs.String("prefix", "", "object key prefix for blob backends")
	l2Dir := fs.String("l2-dir", "", "directory of an on-disk second-level cache")
	l2Mem := fs.Int64("l2-mem", 0, "byte capacity of an in-memory second-level cache")
	l2Codec := fs.String("l2-codec", defaults.L2Codec, "compression of on-disk entries: none, lz4 or zstd")
	memLimit := fs.Int64("memory-limit", 0, "memory budget shared by slots and l2-mem")
	ioLimit := fs.Int64("io-limit", 0, "device bandwidth cap in bytes per second")
	logLevel := fs.String("log-level", defaults.LogLevel, "debug, info, warn or error")
	jsonLog := fs.Bool("json-log", false, "log as JSON")
	command := fs.StringP("command", "c", "", "run semicolon-separated commands and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bufcache [flags] [target]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg := defaults
	if *configPath != "" {
		fileCfg, err := loadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	// Flags given on the command line win over the config file.
	cfg = mergeConfig(cfg, Config{
		Backend:     changed(fs, "backend", *backend),
		Slots:       changed(fs, "slots", *slots),
		BlockSize:   changed(fs, "block-size", *blockSize),
		Blocks:      changed(fs, "blocks", *blocks),
		Prefix:      changed(fs, "prefix", *prefix),
		L2Dir:       changed(fs, "l2-dir", *l2Dir),
		L2Mem:       changed(fs, "l2-mem", *l2Mem),
		L2Codec:     changed(fs, "l2-codec", *l2Codec),
		MemoryLimit: changed(fs, "memory-limit", *memLimit),
		IOLimit:     changed(fs, "io-limit", *ioLimit),
		LogLevel:    changed(fs, "log-level", *logLevel),
		JSONLog:     changed(fs, "json-log", *jsonLog),
	})

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	sh, err := open(ctx, cfg, fs.Arg(0), stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if *command != "" {
		err = sh.RunScript(ctx, *command)
	} else {
		err = sh.Run(ctx)
	}

	if cerr := sh.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// changed returns v if the flag was set explicitly, else the zero value.
func changed[T comparable](fs *flag.FlagSet, name string, v T) T {
	if fs.Changed(name) {
		return v
	}
	var zero T
	return zero
}

// open builds the cache and mounts the target as shellDev.
func open(ctx context.Context, cfg Config, target string, stdout, stderr io.Writer) (*Shell, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, hopts)
	if cfg.JSONLog {
		handler = slog.NewJSONHandler(stderr, hopts)
	}
	logger := bufcache.NewLogger(handler)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     cfg.MemoryLimit,
		MaxBackgroundWorkers: cfg.L2Writers,
		IOLimitBytesPerSec:   cfg.IOLimit,
	})

	l2, err := openSecondLevel(cfg, rc)
	if err != nil {
		return nil, fmt.Errorf("second-level cache: %w", err)
	}

	device, err := openDevice(ctx, cfg, target)
	if err != nil {
		if l2 != nil {
			_ = l2.Close()
		}
		return nil, fmt.Errorf("open %s device: %w", cfg.Backend, err)
	}
	disk := blockdev.NewFaulty(device, cfg.BlockSize)

	mc := &bufcache.BasicMetricsCollector{}
	opts := []bufcache.Option{
		bufcache.WithLogger(logger),
		bufcache.WithMetricsCollector(mc),
		bufcache.WithResourceController(rc),
	}
	if l2 != nil {
		opts = append(opts, bufcache.WithSecondLevel(l2))
	}

	c, err := bufcache.New(cfg.Slots, cfg.BlockSize, opts...)
	if err != nil {
		_ = disk.Close()
		if l2 != nil {
			_ = l2.Close()
		}
		return nil, err
	}

	// The fault injector hides whether the device it wraps is RAM.
	if err := c.Mount(shellDev, disk, bufcache.MountOptions{Volatile: blockdev.IsVolatile(device)}); err != nil {
		_ = c.Close(ctx)
		_ = disk.Close()
		return nil, err
	}

	logger.Debug("cache ready",
		"backend", cfg.Backend,
		"target", target,
		"slots", cfg.Slots,
		"block_size", cfg.BlockSize,
	)

	return NewShell(c, disk, cfg, mc, stdout), nil
}

// splitScript splits a -c argument into shell lines.
func splitScript(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, ";") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
