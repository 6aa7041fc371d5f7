package services

import (
	"accidentwatch/models"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const facilitySnapshotKey = "facilities:snapshot"

// FacilityCache keeps the last good facility snapshot in Redis so a restart
// can serve dispatch before the layers are fetched again.
type FacilityCache struct {
	redis *redis.Client
	key   string
}

func NewFacilityCache(client *redis.Client) *FacilityCache {
	return &FacilityCache{
		redis: client,
		key:   facilitySnapshotKey,
	}
}

// Get returns nil without error when nothing is cached.
func (fc *FacilityCache) Get(ctx context.Context) (*models.FacilitySnapshotView, error) {
	data, err := fc.redis.Get(ctx, fc.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var view models.FacilitySnapshotView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (fc *FacilityCache) Set(ctx context.Context, view models.FacilitySnapshotView, ttl time.Duration) error {
	b, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return fc.redis.Set(ctx, fc.key, b, ttl).Err()
}
