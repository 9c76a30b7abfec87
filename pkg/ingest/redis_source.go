package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minos-eval/minos/pkg/domain"
)

// KeyPrefix namespaces the sorted sets holding observations.
const KeyPrefix = "minos:observations:"

// RedisSource stores the observations of one dataset in a Redis sorted set, scored by
// unix seconds with JSON members.
type RedisSource struct {
	client *redis.Client
	key    string
}

func NewRedisClient(ctx context.Context, addr string, db int, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisSource(client *redis.Client, dataset string) *RedisSource {
	return &RedisSource{
		client: client,
		key:    KeyPrefix + dataset,
	}
}

// Save writes observations, replacing any member already stored at the same timestamp.
func (s *RedisSource) Save(ctx context.Context, observations []domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, obs := range observations {
		data, err := json.Marshal(obs)
		if err != nil {
			return fmt.Errorf("failed to marshal observation: %w", err)
		}

		score := strconv.FormatInt(obs.Timestamp.Unix(), 10)
		pipe.ZRemRangeByScore(ctx, s.key, score, score)
		pipe.ZAdd(ctx, s.key, redis.Z{
			Score:  float64(obs.Timestamp.Unix()),
			Member: data,
		})
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Load returns the observations with start <= timestamp < end in chronological order.
// A zero start or end leaves that side unbounded.
func (s *RedisSource) Load(ctx context.Context, start, end time.Time) ([]domain.Observation, error) {
	min, max := "-inf", "+inf"
	if !start.IsZero() {
		min = strconv.FormatInt(start.Unix(), 10)
	}
	if !end.IsZero() {
		max = "(" + strconv.FormatInt(end.Unix(), 10)
	}

	results, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.key, err)
	}

	observations := make([]domain.Observation, 0, len(results))
	for _, data := range results {
		var obs domain.Observation
		if err := json.Unmarshal([]byte(data), &obs); err != nil {
			return nil, fmt.Errorf("malformed observation in %s: %w", s.key, err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// Prune removes observations recorded before cutoff.
func (s *RedisSource) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.client.ZRemRangeByScore(ctx, s.key, "-inf", "("+strconv.FormatInt(cutoff.Unix(), 10)).Result()
}

// Datasets lists the dataset names that have observations stored.
func Datasets(ctx context.Context, client *redis.Client) ([]string, error) {
	var names []string
	iter := client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val()[len(KeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
