package service

import (
	"errors"

	"github.com/dgraph-io/ristretto"
)

// RenderCache memoizes rendered SVG documents per trace id. The cache is
// lossy; a miss just means the caller regenerates, which is pure.
type RenderCache interface {
	Get(traceId string) (string, error)
	Put(traceId string, svg string) error
}

type RenderCacheImpl struct {
	cache *ristretto.Cache
}

func NewRenderCacheImpl(cache *ristretto.Cache) *RenderCacheImpl {
	return &RenderCacheImpl{cache: cache}
}

func (rc *RenderCacheImpl) Get(traceId string) (string, error) {
	value, found := rc.cache.Get(traceId)
	if !found {
		return "", ErrRenderNotCached
	}
	svg, ok := value.(string)
	if !ok {
		return "", ErrRenderNotCached
	}
	return svg, nil
}

func (rc *RenderCacheImpl) Put(traceId string, svg string) error {
	if set := rc.cache.Set(traceId, svg, int64(len(svg))); !set {
		return ErrSetFailed
	}
	return nil
}

var (
	ErrRenderNotCached = errors.New("no rendered flamegraph cached for trace")
	ErrSetFailed       = errors.New("failed to cache rendered flamegraph")
)
