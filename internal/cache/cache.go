package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Logical keys stored under the namespace prefix.
const (
	KeyRememberedEmail = "remembered_email"
	KeySession         = "session"
	KeyRoster          = "roster"
	KeyResources       = "resources"
)

// AttendanceKey is the per-course attendance snapshot key.
func AttendanceKey(courseID string) string {
	return fmt.Sprintf("attendance:%s", courseID)
}

// schemaMarker records that the current namespace has been populated at
// least once; its absence on open triggers the legacy-prefix migration.
const schemaMarker = "schema"

// Cache is the durable fast-path store. It never fails callers: Save and
// Load report success as a flag, failures are logged. Entries that no
// longer deserialize are purged and treated as absent.
type Cache struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

// Open wires the cache and, when the namespace prefix has changed between
// releases, migrates entries from the legacy prefix instead of silently
// orphaning them.
func Open(ctx context.Context, rdb *redis.Client, namespace, legacyNamespace string, log *zap.Logger) (*Cache, error) {
	c := &Cache{rdb: rdb, prefix: namespace, log: log}
	if err := c.migrate(ctx, legacyNamespace); err != nil {
		return nil, fmt.Errorf("cache migration: %w", err)
	}
	return c, nil
}

func (c *Cache) namespaced(key string) string {
	return c.prefix + key
}

// Save persists a serializable value, overwriting any prior one. Returns
// false on marshal or store failure.
func (c *Cache) Save(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache save: marshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.rdb.Set(ctx, c.namespaced(key), data, 0).Err(); err != nil {
		c.log.Warn("cache save failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Load reads a value into dest. Returns false when the key is absent or the
// entry is corrupt; corrupt entries are purged so they are not re-reported.
func (c *Cache) Load(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, c.namespaced(key)).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn("cache load failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("malformed cache entry purged", zap.String("key", key), zap.Error(err))
		c.Delete(ctx, key)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.namespaced(key)).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// ExportAll returns every namespaced entry with the prefix stripped, for
// the user-initiated backup download.
func (c *Cache) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := strings.TrimPrefix(full, c.prefix)
		if key == schemaMarker {
			continue
		}
		data, err := c.rdb.Get(ctx, full).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		if !json.Valid(data) {
			c.log.Warn("malformed cache entry skipped in export", zap.String("key", key))
			continue
		}
		out[key] = json.RawMessage(data)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear removes every namespaced entry, marker included.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx, c.prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// migrate copies entries from the legacy namespace exactly once: only when
// the current namespace has never been populated and the legacy one holds
// keys. Legacy keys are removed afterwards.
func (c *Cache) migrate(ctx context.Context, legacyPrefix string) error {
	if legacyPrefix == "" || legacyPrefix == c.prefix {
		return c.markSchema(ctx)
	}
	marked, err := c.rdb.Exists(ctx, c.namespaced(schemaMarker)).Result()
	if err != nil {
		return err
	}
	if marked > 0 {
		return nil
	}
	legacyKeys, err := c.keys(ctx, legacyPrefix)
	if err != nil {
		return err
	}
	for _, legacyKey := range legacyKeys {
		data, err := c.rdb.Get(ctx, legacyKey).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}
		key := strings.TrimPrefix(legacyKey, legacyPrefix)
		if err := c.rdb.Set(ctx, c.namespaced(key), data, 0).Err(); err != nil {
			return err
		}
	}
	if len(legacyKeys) > 0 {
		c.log.Info("migrated cache namespace",
			zap.String("from", legacyPrefix),
			zap.String("to", c.prefix),
			zap.Int("entries", len(legacyKeys)))
		if err := c.rdb.Del(ctx, legacyKeys...).Err(); err != nil {
			return err
		}
	}
	return c.markSchema(ctx)
}

func (c *Cache) markSchema(ctx context.Context) error {
	return c.rdb.Set(ctx, c.namespaced(schemaMarker), []byte(`"v2"`), 0).Err()
}
