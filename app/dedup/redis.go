package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey = "newsbot:dedup:entries"

	// maxWatchRetries bounds optimistic retries when another writer touched
	// the index between read and write.
	maxWatchRetries = 5
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisIndex shares the index between processes. Entries live in one sorted
// set scored by the time they were added, so pruning is a single range delete.
// MatchOrAdd runs under WATCH on that key, so concurrent writers retry instead
// of both accepting the same story.
type RedisIndex struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisIndex(cfg RedisConfig, ttl time.Duration) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis dedup index", "addr", cfg.Addr)

	return newRedisIndex(client, cfg.Key, ttl), nil
}

func newRedisIndex(client *redis.Client, key string, ttl time.Duration) *RedisIndex {
	if key == "" {
		key = defaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisIndex{client: client, key: key, ttl: ttl, now: time.Now}
}

func (r *RedisIndex) MatchOrAdd(ctx context.Context, fp Fingerprint, sourceID string, opts MatchOptions) (Match, error) {
	member := encodeMember(Entry{
		SourceID:    sourceID,
		ContentHash: fp.ContentHash,
		SimHash:     fp.SimHash,
		HasSimHash:  fp.HasSimHash,
	})

	var match Match
	txf := func(tx *redis.Tx) error {
		now := r.now()
		cutoff := now.Add(-r.ttl)
		members, err := tx.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
			Min: strconv.FormatInt(cutoff.UnixMilli(), 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to read dedup index: %w", err)
		}

		match = bestMatch(decodeMembers(members), fp, sourceID, opts, cutoff)
		if match.Duplicate() {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, r.key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, r.key)
		if err == nil {
			return match, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Match{}, fmt.Errorf("failed to update dedup index: %w", err)
	}
	return Match{}, fmt.Errorf("failed to update dedup index: contended after %d attempts", maxWatchRetries)
}

func decodeMembers(members []redis.Z) []Entry {
	entries := make([]Entry, 0, len(members))
	for _, z := range members {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entry, err := decodeMember(member)
		if err != nil {
			slog.Warn("Skipping malformed dedup entry", "member", member, "error", err)
			continue
		}
		entry.SeenAt = time.UnixMilli(int64(z.Score))
		entries = append(entries, entry)
	}
	return entries
}

func (r *RedisIndex) Prune(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	removed, err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune dedup index: %w", err)
	}
	return int(removed), nil
}

func (r *RedisIndex) Len(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dedup index: %w", err)
	}
	return int(n), nil
}

func (r *RedisIndex) Close() error {
	return r.client.Close()
}

// Members look like "<source>|<content hash>|<simhash hex or ->".
func encodeMember(e Entry) string {
	sim := "-"
	if e.HasSimHash {
		sim = strconv.FormatUint(e.SimHash, 16)
	}
	return e.SourceID + "|" + e.ContentHash + "|" + sim
}

func decodeMember(member string) (Entry, error) {
	parts := strings.Split(member, "|")
	if len(parts) != 3 {
		return Entry{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	entry := Entry{SourceID: parts[0], ContentHash: parts[1]}
	if parts[2] != "-" {
		sim, err := strconv.ParseUint(parts[2], 16, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid simhash: %w", err)
		}
		entry.SimHash = sim
		entry.HasSimHash = true
	}
	return entry, nil
}
