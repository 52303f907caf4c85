package llm

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ResponseCache is the content-addressed LLM response cache, backed by
// the embedded store's cache_entries table.
//
// Keys are sha256(provider :: model :: role:content per message). Only
// non-streaming, tool-free requests are cacheable. Entries expire after
// the TTL and the table is bounded by maxEntries with strict LRU within
// capacity: every insert first deletes expired rows, then evicts the
// least recently used surplus.
type ResponseCache struct {
	mu         sync.Mutex
	db         *sql.DB
	ttl        time.Duration
	maxEntries int
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// TTL is how long entries stay servable. Default: 1 hour.
	TTL time.Duration

	// MaxEntries bounds the table. Default: 1000.
	MaxEntries int
}

// NewResponseCache creates the cache and ensures its table exists.
func NewResponseCache(db *sql.DB, cfg CacheConfig) (*ResponseCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			prompt_hash TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			response_body TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create cache_entries table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at)`); err != nil {
		return nil, fmt.Errorf("create cache index: %w", err)
	}

	return &ResponseCache{db: db, ttl: cfg.TTL, maxEntries: cfg.MaxEntries}, nil
}

// Cacheable reports whether a request may consult the cache.
func Cacheable(req *Request) bool {
	return req != nil && !req.Stream && len(req.Tools) == 0
}

// Key computes the cache key for a request routed to provider/model.
func Key(provider Provider, model string, messages []Message) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte("::"))
	h.Write([]byte(model))
	h.Write([]byte("::"))
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte(":"))
		h.Write([]byte(m.Content))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// promptHash fingerprints just the message contents, for diagnostics.
func promptHash(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Content))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for the request, or nil on miss.
// Expired entries are deleted, never served. A hit refreshes
// last_used_at and returns the response with Cached=true.
func (c *ResponseCache) Get(provider Provider, model string, messages []Message) (*Response, error) {
	key := Key(provider, model, messages)

	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRow(`
		SELECT response_body, prompt_tokens, completion_tokens, cost, model, expires_at
		FROM cache_entries WHERE cache_key = ?`, key)

	var body, storedModel string
	var promptTokens, completionTokens int
	var cost float64
	var expiresAt time.Time
	if err := row.Scan(&body, &promptTokens, &completionTokens, &cost, &storedModel, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	if !expiresAt.After(time.Now()) {
		if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
			return nil, fmt.Errorf("cache prune: %w", err)
		}
		return nil, nil
	}

	if _, err := c.db.Exec(`UPDATE cache_entries SET last_used_at = ? WHERE cache_key = ?`, time.Now().UTC(), key); err != nil {
		return nil, fmt.Errorf("cache touch: %w", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	resp.Tokens = TokenUsage{Prompt: promptTokens, Completion: completionTokens, Total: promptTokens + completionTokens}
	resp.CostUSD = cost
	resp.Model = storedModel
	resp.Cached = true
	return &resp, nil
}

// Put stores a successful response. Eviction runs inside the same lock:
// expired rows first, then LRU surplus beyond MaxEntries.
func (c *ResponseCache) Put(provider Provider, model string, messages []Message, resp *Response) error {
	key := Key(provider, model, messages)
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("cache expire sweep: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO cache_entries
			(cache_key, prompt_hash, provider, model, response_body,
			 prompt_tokens, completion_tokens, cost, created_at, last_used_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, promptHash(messages), string(provider), model, string(body),
		resp.Tokens.Prompt, resp.Tokens.Completion, resp.CostUSD, now, now, now.Add(c.ttl))
	if err != nil {
		return fmt.Errorf("cache insert: %w", err)
	}

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return fmt.Errorf("cache count: %w", err)
	}
	if count > c.maxEntries {
		_, err := c.db.Exec(`
			DELETE FROM cache_entries WHERE cache_key IN (
				SELECT cache_key FROM cache_entries ORDER BY last_used_at ASC LIMIT ?
			)`, count-c.maxEntries)
		if err != nil {
			return fmt.Errorf("cache LRU eviction: %w", err)
		}
	}
	return nil
}

// Count returns the number of entries currently stored.
func (c *ResponseCache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count)
	return count, err
}

// CullExpired deletes every expired row. The maintenance loop calls this
// periodically so idle caches do not accumulate dead entries.
func (c *ResponseCache) CullExpired() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
