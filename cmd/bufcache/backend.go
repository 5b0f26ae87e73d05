package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/bufcache"
	"github.com/hupe1980/bufcache/blobstore"
	bminio "github.com/hupe1980/bufcache/blobstore/minio"
	bs3 "github.com/hupe1980/bufcache/blobstore/s3"
	"github.com/hupe1980/bufcache/blockdev"
	"github.com/hupe1980/bufcache/cache"
	"github.com/hupe1980/bufcache/resource"
)

var errNoTarget = errors.New("backend needs a target")

// openDevice opens the block device named by target for cfg.Backend:
// an image file, a RAM disk, a local blob directory, or a bucket.
func openDevice(ctx context.Context, cfg Config, target string) (blockdev.Device, error) {
	if target == "" && cfg.Backend != "memory" {
		return nil, fmt.Errorf("%s: %w", cfg.Backend, errNoTarget)
	}

	switch cfg.Backend {
	case "memory":
		return blockdev.NewMemory(cfg.BlockSize, cfg.Blocks), nil

	case "file":
		opts := blockdev.FileOptions{BlockSize: cfg.BlockSize}
		if _, err := os.Stat(target); os.IsNotExist(err) {
			opts.Size = cfg.Blocks * int64(cfg.BlockSize)
		}
		return blockdev.OpenFile(target, opts)

	case "local":
		store, err := blobstore.NewLocalStore(target)
		if err != nil {
			return nil, err
		}
		return newBlob(store, cfg), nil

	case "minio":
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return newBlob(bminio.NewStore(client, target, cfg.Prefix), cfg), nil

	case "s3":
		opts := []bs3.Option{bs3.WithPrefix(cfg.Prefix)}
		if cfg.S3.Region != "" {
			opts = append(opts, bs3.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Endpoint != "" {
			opts = append(opts, bs3.WithEndpoint(cfg.S3.Endpoint))
		}
		store, err := bs3.New(ctx, target, opts...)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return newBlob(store, cfg), nil
	}

	return nil, fmt.Errorf("%w: unknown backend %q", errConfigInvalid, cfg.Backend)
}

func newBlob(store blobstore.Store, cfg Config) *blockdev.Blob {
	return blockdev.NewBlob(store, cfg.BlockSize, cfg.Blocks)
}

// openSecondLevel returns the configured second-level cache, or nil.
func openSecondLevel(cfg Config, rc *resource.Controller) (bufcache.SecondLevel, error) {
	switch {
	case cfg.L2Dir != "":
		codec, err := cache.ParseCodec(cfg.L2Codec)
		if err != nil {
			return nil, err
		}
		disk, err := cache.NewDisk(cache.DiskConfig{
			RootDir:      cfg.L2Dir,
			MaxSizeBytes: cfg.L2MaxSize,
			Codec:        codec,
			Resource:     rc,
		})
		if err != nil {
			return nil, err
		}
		return disk, nil
	case cfg.L2Mem > 0:
		return cache.NewMemory(cfg.L2Mem, rc), nil
	}
	return nil, nil
}
