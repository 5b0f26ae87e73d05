package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache/blobstore"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	store, err := New(ctx, bucket, WithPrefix(fmt.Sprintf("test-bufcache-%d/", time.Now().UnixNano())))
	require.NoError(t, err)

	data := make([]byte, 4096)
	_, _ = rand.Read(data)

	require.NoError(t, store.Put(ctx, "dev3/0", data))

	got, err := store.Get(ctx, "dev3/0")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "dev3/0")

	require.NoError(t, store.Delete(ctx, "dev3/0"))
	_, err = store.Get(ctx, "dev3/0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
