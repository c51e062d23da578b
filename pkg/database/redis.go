package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig, Redis bağlantı ayarlarını içerir.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisClient, Redis bağlantı havuzunu yönetir.
type RedisClient struct {
	client *redis.Client
	config *RedisConfig
}

// NewRedisClient, yeni bir Redis client oluşturur.
func NewRedisClient(config *RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Bağlantı testi
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client: client,
		config: config,
	}, nil
}

// GetClient, *redis.Client instance'ını döndürür.
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Ping, bağlantının sağlıklı olup olmadığını kontrol eder.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close, bağlantıyı kapatır.
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Set, key-value çiftini belirtilen TTL ile saklar.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get, key'e karşılık gelen değeri getirir.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Delete, key'i siler.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// --- Cache Management (Threat Intel, GeoIP) ---

// SetThreatIntel, threat intel sonucunu cache'ler.
func (r *RedisClient) SetThreatIntel(ctx context.Context, ip string, data string, ttl time.Duration) error {
	key := fmt.Sprintf("threat:intel:%s", ip)
	return r.Set(ctx, key, data, ttl)
}

// GetThreatIntel, cache'lenmiş threat intel verisini getirir.
func (r *RedisClient) GetThreatIntel(ctx context.Context, ip string) (string, error) {
	key := fmt.Sprintf("threat:intel:%s", ip)
	result, err := r.Get(ctx, key)
	if err == redis.Nil {
		return "", nil // Cache miss
	}
	return result, err
}

// CacheGeoIP, GeoIP sonucunu cache'ler.
func (r *RedisClient) CacheGeoIP(ctx context.Context, ip string, data string, ttl time.Duration) error {
	key := fmt.Sprintf("geoip:%s", ip)
	return r.Set(ctx, key, data, ttl)
}

// GetCachedGeoIP, cache'lenmiş GeoIP verisini getirir.
func (r *RedisClient) GetCachedGeoIP(ctx context.Context, ip string) (string, error) {
	key := fmt.Sprintf("geoip:%s", ip)
	result, err := r.Get(ctx, key)
	if err == redis.Nil {
		return "", nil // Cache miss
	}
	return result, err
}

// --- Rate Limiting ---

// CheckRateLimit, rate limit kontrolü yapar.
// Dönen değer: (mevcut request sayısı, izin verilip verilmediği, error)
func (r *RedisClient) CheckRateLimit(ctx context.Context, identifier string, limit int64, window time.Duration) (int64, bool, error) {
	key := fmt.Sprintf("ratelimit:%s", identifier)

	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, false, err
	}

	current := incrCmd.Val()
	allowed := current <= limit

	return current, allowed, nil
}

// --- Health Check ---

// Health, Redis sağlık durumunu döndürür.
func (r *RedisClient) Health(ctx context.Context) (map[string]string, error) {
	_, err := r.client.Info(ctx).Result()
	if err != nil {
		return nil, err
	}

	stats := r.client.PoolStats()

	return map[string]string{
		"status":      "healthy",
		"hits":        fmt.Sprintf("%d", stats.Hits),
		"misses":      fmt.Sprintf("%d", stats.Misses),
		"total_conns": fmt.Sprintf("%d", stats.TotalConns),
		"idle_conns":  fmt.Sprintf("%d", stats.IdleConns),
		"stale_conns": fmt.Sprintf("%d", stats.StaleConns),
	}, nil
}
