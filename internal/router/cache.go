package router

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"layerforge/internal/services/llm"
)

// responseCache memoises deterministic completions within a process.
type responseCache struct {
	c *ristretto.Cache[string, llm.Completion]
}

func newResponseCache(maxCostBytes int64) (*responseCache, error) {
	if maxCostBytes <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, llm.Completion]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}
	return &responseCache{c: c}, nil
}

func cacheKey(req llm.Request) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", req.Model, req.MaxTokens, req.Prompt)))
	return hex.EncodeToString(sum[:])
}

func (c *responseCache) get(req llm.Request) (llm.Completion, bool) {
	if c == nil || req.Temperature != 0 {
		return llm.Completion{}, false
	}
	return c.c.Get(cacheKey(req))
}

func (c *responseCache) set(req llm.Request, completion llm.Completion) {
	if c == nil || req.Temperature != 0 {
		return
	}
	c.c.Set(cacheKey(req), completion, int64(len(completion.Text))+1)
	c.c.Wait()
}

func (c *responseCache) close() {
	if c != nil {
		c.c.Close()
	}
}
