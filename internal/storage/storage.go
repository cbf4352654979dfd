package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lehigh-university-libraries/ecosort/internal/providers"
)

// PredictionCache remembers recent predictions by image digest. A nil cache
// is valid and stores nothing.
type PredictionCache struct {
	entries *lru.Cache[string, providers.Prediction]
}

// New returns a cache holding at most size predictions, or nil when size
// is not positive.
func New(size int) (*PredictionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, providers.Prediction](size)
	if err != nil {
		return nil, err
	}
	return &PredictionCache{entries: entries}, nil
}

func (c *PredictionCache) Get(digest string) (providers.Prediction, bool) {
	if c == nil {
		return providers.Prediction{}, false
	}
	return c.entries.Get(digest)
}

func (c *PredictionCache) Set(digest string, p providers.Prediction) {
	if c == nil {
		return
	}
	c.entries.Add(digest, p)
}

func (c *PredictionCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *PredictionCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
