package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	firingPrefix   = "alert:group:firing"
	recoveryPrefix = "alert:group:recovery"
	groupTTL       = 2 * time.Hour
	scanCount      = 100
)

// RedisStore is the reference GroupStore backend, grounded in
// redis_alert_grouper.py: one JSON blob per group key, SETEX'd with a
// 2-hour TTL so an abandoned group self-expires.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(prefix, groupKey string) string {
	return fmt.Sprintf("%s:%s", prefix, groupKey)
}

func (s *RedisStore) loadGroup(ctx context.Context, key string) (*Group, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g Group
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *RedisStore) saveGroup(ctx context.Context, key string, g *Group) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.client.SetEx(ctx, key, raw, groupTTL).Err()
}

func (s *RedisStore) addAlert(ctx context.Context, groupKey string, groupLabels map[string]string, ruleID, ruleName string, alert AlertSnapshot, isRecovery bool) error {
	prefix := firingPrefix
	if isRecovery {
		prefix = recoveryPrefix
	}
	key := redisKey(prefix, groupKey)

	g, err := s.loadGroup(ctx, key)
	if err != nil {
		return err
	}
	now := time.Now()
	if g == nil {
		g = &Group{
			GroupKey:      groupKey,
			GroupLabels:   groupLabels,
			RuleID:        ruleID,
			RuleName:      ruleName,
			CreatedAt:     now,
			LastUpdatedAt: now,
			IsRecovery:    isRecovery,
		}
	}

	for _, existing := range g.Alerts {
		if existing.Fingerprint == alert.Fingerprint {
			return nil
		}
	}
	g.Alerts = append(g.Alerts, alert)
	g.LastUpdatedAt = now
	return s.saveGroup(ctx, key, g)
}

// AddAlert implements GroupStore.
func (s *RedisStore) AddAlert(ctx context.Context, groupKey string, groupLabels map[string]string, ruleID, ruleName string, alert AlertSnapshot) error {
	return s.addAlert(ctx, groupKey, groupLabels, ruleID, ruleName, alert, false)
}

// AddRecoveryAlert implements GroupStore.
func (s *RedisStore) AddRecoveryAlert(ctx context.Context, groupKey string, groupLabels map[string]string, ruleID, ruleName string, alert AlertSnapshot) error {
	return s.addAlert(ctx, groupKey, groupLabels, ruleID, ruleName, alert, true)
}

func (s *RedisStore) scanGroups(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+":*", scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// ReadyGroups implements GroupStore.
func (s *RedisStore) ReadyGroups(ctx context.Context, groupWait, repeatInterval time.Duration) ([]Group, error) {
	var ready []Group
	now := time.Now()

	for _, prefix := range []string{firingPrefix, recoveryPrefix} {
		keys, err := s.scanGroups(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			g, err := s.loadGroup(ctx, key)
			if err != nil || g == nil {
				continue
			}
			if isGroupReady(g, now, groupWait, repeatInterval) {
				ready = append(ready, *g)
			}
		}
	}
	return ready, nil
}

// MarkSent implements GroupStore.
func (s *RedisStore) MarkSent(ctx context.Context, groupKey string, isRecovery bool) error {
	prefix := firingPrefix
	if isRecovery {
		prefix = recoveryPrefix
	}
	key := redisKey(prefix, groupKey)
	g, err := s.loadGroup(ctx, key)
	if err != nil {
		return err
	}
	if g == nil {
		return ErrNotFound
	}
	g.Sent = true
	return s.saveGroup(ctx, key, g)
}

// Clear implements GroupStore.
func (s *RedisStore) Clear(ctx context.Context, groupKey string, isRecovery bool) error {
	prefix := firingPrefix
	if isRecovery {
		prefix = recoveryPrefix
	}
	return s.client.Del(ctx, redisKey(prefix, groupKey)).Err()
}

// RemoveAlert implements GroupStore.
func (s *RedisStore) RemoveAlert(ctx context.Context, fingerprint string) error {
	keys, err := s.scanGroups(ctx, firingPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		g, err := s.loadGroup(ctx, key)
		if err != nil || g == nil {
			continue
		}
		kept := g.Alerts[:0]
		for _, a := range g.Alerts {
			if a.Fingerprint != fingerprint {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(g.Alerts) {
			continue
		}
		g.Alerts = kept
		if len(g.Alerts) == 0 {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return err
			}
			continue
		}
		if err := s.saveGroup(ctx, key, g); err != nil {
			return err
		}
	}
	return nil
}

// Stats implements GroupStore.
func (s *RedisStore) Stats(ctx context.Context) (GroupStats, error) {
	var stats GroupStats

	for _, prefix := range []string{firingPrefix, recoveryPrefix} {
		keys, err := s.scanGroups(ctx, prefix)
		if err != nil {
			return GroupStats{}, err
		}
		isRecovery := strings.HasPrefix(prefix, recoveryPrefix)
		if isRecovery {
			stats.RecoveryGroups += len(keys)
		} else {
			stats.FiringGroups += len(keys)
		}
		for _, key := range keys {
			g, err := s.loadGroup(ctx, key)
			if err != nil || g == nil {
				continue
			}
			stats.TotalAlerts += len(g.Alerts)
			if g.Sent {
				stats.SentGroups++
			} else {
				stats.PendingGroups++
			}
		}
	}
	stats.TotalGroups = stats.FiringGroups + stats.RecoveryGroups
	return stats, nil
}
