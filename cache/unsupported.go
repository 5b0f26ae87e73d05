package cache

import (
	"context"
	"errors"

	"github.com/hupe1980/bufcache/internal/core"
)

// Unsupported is a second-level cache that fails the support check in bufcache.New.
// A block cache configured with it never calls it again after New.
type Unsupported struct{}

func (Unsupported) Offer(context.Context, core.BlockID, []byte) {}

func (Unsupported) Fetch(context.Context, core.BlockID, core.BlockID, []byte) bool { return false }

// Forget always returns errors.ErrUnsupported.
func (Unsupported) Forget(context.Context, core.BlockID) error { return errors.ErrUnsupported }

func (Unsupported) ForgetAll(context.Context, core.DevID) {}

func (Unsupported) Close() error { return nil }
