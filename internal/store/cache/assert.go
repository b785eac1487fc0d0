package cache

import "github.com/hyphalmesh/substrate/internal/store"

var _ store.RateLimitStore = (*RateLimitStore)(nil)
