package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetops/fuelcore/internal/models"
)

// cacheTTL keeps the hot copy short-lived; the store remains the system of
// record and repopulates the cache on read-through.
const cacheTTL = 5 * time.Minute

// Cache is the redis hot copy of the per-truck algorithm state and adaptive
// thresholds.
type Cache struct {
	client  *redis.Client
	timeout time.Duration
}

// NewCache connects a redis client for addr. The connection is lazy; the
// first operation surfaces connectivity errors, which the Gateway swallows.
func NewCache(addr string, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Cache{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		timeout: timeout,
	}
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func algorithmStateKey(truckID, sensor string) string {
	return "fuelcore:algstate:" + truckID + ":" + sensor
}

func thresholdKey(truckID string) string {
	return "fuelcore:threshold:" + truckID
}

// SetAlgorithmState mirrors one state record into the cache.
func (c *Cache) SetAlgorithmState(ctx context.Context, st models.AlgorithmState) error {
	return c.setJSON(ctx, algorithmStateKey(st.TruckID, st.Sensor), st)
}

// GetAlgorithmState reads one state record, ok=false on miss.
func (c *Cache) GetAlgorithmState(ctx context.Context, truckID, sensor string) (models.AlgorithmState, bool, error) {
	var st models.AlgorithmState
	ok, err := c.getJSON(ctx, algorithmStateKey(truckID, sensor), &st)
	return st, ok, err
}

// SetAdaptiveThreshold mirrors one threshold record into the cache.
func (c *Cache) SetAdaptiveThreshold(ctx context.Context, t models.AdaptiveThreshold) error {
	return c.setJSON(ctx, thresholdKey(t.TruckID), t)
}

// GetAdaptiveThreshold reads one threshold record, ok=false on miss.
func (c *Cache) GetAdaptiveThreshold(ctx context.Context, truckID string) (models.AdaptiveThreshold, bool, error) {
	var t models.AdaptiveThreshold
	ok, err := c.getJSON(ctx, thresholdKey(truckID), &t)
	return t, ok, err
}

func (c *Cache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(ctx, key, data, cacheTTL).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}
