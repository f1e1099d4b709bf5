package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache fronts the durable scan state with Redis. It is strictly a fast
// path: the idempotency table stays authoritative, every entry here is
// written behind a committed transaction, and a nil Cache (Redis disabled)
// degrades to plain table lookups.
type Cache struct {
	Client     *redis.Client
	ConfirmTTL time.Duration
	LabelTTL   time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{
		Client:     client,
		ConfirmTTL: 24 * time.Hour,
		LabelTTL:   5 * time.Minute,
	}
}

// StoredConfirm mirrors one idempotency log row: who owns the request id,
// and the exact bytes plus status code to replay.
type StoredConfirm struct {
	ScannerID  string          `json:"scannerId"`
	StatusCode int             `json:"statusCode"`
	Payload    json.RawMessage `json:"payload"`
}

func confirmKey(clientRequestID string) string {
	return "scan_confirm:" + clientRequestID
}

func labelKey(managerID string) string {
	return "other_label:" + managerID
}

// ConfirmResponse returns the cached response for a confirm request id, or
// nil when uncached.
func (c *Cache) ConfirmResponse(ctx context.Context, clientRequestID string) (*StoredConfirm, error) {
	if c == nil || c.Client == nil {
		return nil, nil
	}

	raw, err := c.Client.Get(ctx, confirmKey(clientRequestID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get confirm response: %w", err)
	}

	var stored StoredConfirm
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal cached confirm response: %w", err)
	}
	return &stored, nil
}

// StoreConfirmResponse caches a confirm response after the transaction that
// recorded it has committed.
func (c *Cache) StoreConfirmResponse(ctx context.Context, clientRequestID string, stored StoredConfirm) error {
	if c == nil || c.Client == nil {
		return nil
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, confirmKey(clientRequestID), raw, c.ConfirmTTL).Err()
}

// OtherLabel returns the cached OTHER display label for a manager, with ok
// false on a miss.
func (c *Cache) OtherLabel(ctx context.Context, managerID string) (string, bool, error) {
	if c == nil || c.Client == nil {
		return "", false, nil
	}

	label, err := c.Client.Get(ctx, labelKey(managerID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get other label: %w", err)
	}
	return label, true, nil
}

// StoreOtherLabel caches a manager's OTHER display label.
func (c *Cache) StoreOtherLabel(ctx context.Context, managerID, label string) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Set(ctx, labelKey(managerID), label, c.LabelTTL).Err()
}

// InvalidateOtherLabel drops the cached label after a settings update.
func (c *Cache) InvalidateOtherLabel(ctx context.Context, managerID string) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, labelKey(managerID)).Err()
}
