package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raywall/fast-doc-pipeline/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisClient é o subconjunto do redis.Cmdable usado pelo cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NewRedisClient cria o cliente a partir da configuração do cache.
func NewRedisClient(cfg config.CacheConf) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Cached consulta o Redis antes de chamar o embedder. Falhas do cache são
// logadas e ignoradas.
type Cached struct {
	inner Embedder
	redis RedisClient
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCached(inner Embedder, client RedisClient, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{inner: inner, redis: client, ttl: ttl, log: log}
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }
func (c *Cached) Model() string  { return c.inner.Model() }

// CacheKey monta a chave emb:<model>:<sha256 do texto>.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing    []string
		missingIdx []int
	)

	for i, text := range texts {
		if v, ok := c.lookup(ctx, CacheKey(c.Model(), text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed: cache: got %d vectors for %d uncached texts", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		c.store(ctx, CacheKey(c.Model(), missing[j]), v)
	}

	c.log.Debug().
		Int("hits", len(texts)-len(missing)).
		Int("misses", len(missing)).
		Msg("cache de embeddings consultado")
	return out, nil
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("falha ao ler cache de embeddings")
		return nil, false
	}

	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil || (c.Dimension() > 0 && len(v) != c.Dimension()) {
		c.log.Warn().Str("key", key).Msg("entrada inválida no cache de embeddings")
		return nil, false
	}
	return v, true
}

func (c *Cached) store(ctx context.Context, key string, v []float32) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("falha ao gravar cache de embeddings")
	}
}
