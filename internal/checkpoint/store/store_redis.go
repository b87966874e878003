package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"eventgate/internal/checkpoint/models"
	"eventgate/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "eventgate:token:"

	fieldEntryGate = "_entryGate"
	fieldCreatedAt = "_createdAt"
	fieldUpdatedAt = "_updatedAt"

	defaultMaxRetries = 16
)

// RedisStore keeps each token record in a hash. Underscore-prefixed fields
// are metadata; every other field is a checkpoint flag ("1" when collected).
// Execute uses WATCH/MULTI and retries when another writer wins the race.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
	now        func() time.Time
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, maxRetries: defaultMaxRetries, now: time.Now}
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get token record: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return recordFromHash(token, fields)
}

func (s *RedisStore) GetOrCreate(ctx context.Context, token string) (*models.TokenRecord, error) {
	now := strconv.FormatInt(s.now().UnixNano(), 10)
	key := tokenKey(token)
	// HSETNX per field keeps concurrent creators from clobbering each other.
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldEntryGate, "0")
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)
		pipe.HSetNX(ctx, key, fieldUpdatedAt, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create token record: %w", err)
	}
	return s.FindByToken(ctx, token)
}

func (s *RedisStore) Execute(ctx context.Context, token string, validate func(*models.TokenRecord) error, mutate func(*models.TokenRecord)) (*models.TokenRecord, error) {
	key := tokenKey(token)
	var result *models.TokenRecord

	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("get token record for execute: %w", err)
		}
		var record *models.TokenRecord
		if len(fields) == 0 {
			record = models.NewTokenRecord(token, s.now())
		} else if record, err = recordFromHash(token, fields); err != nil {
			return err
		}

		if err := validate(record); err != nil {
			return err
		}
		mutate(record)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, recordToHash(record))
			return nil
		})
		if err != nil {
			return err
		}
		result = record
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("token %s: %w", token, sentinel.ErrConflict)
}

func recordToHash(r *models.TokenRecord) map[string]any {
	h := map[string]any{
		fieldEntryGate: boolField(r.EntryGate),
		fieldCreatedAt: strconv.FormatInt(r.CreatedAt.UnixNano(), 10),
		fieldUpdatedAt: strconv.FormatInt(r.UpdatedAt.UnixNano(), 10),
	}
	for cp, done := range r.Checkpoints {
		h[string(cp)] = boolField(done)
	}
	return h
}

func recordFromHash(token string, fields map[string]string) (*models.TokenRecord, error) {
	r := &models.TokenRecord{Token: token, Checkpoints: make(map[models.CheckpointID]bool)}
	for k, v := range fields {
		switch k {
		case fieldEntryGate:
			r.EntryGate = v == "1"
		case fieldCreatedAt, fieldUpdatedAt:
			ns, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", k, err)
			}
			if k == fieldCreatedAt {
				r.CreatedAt = time.Unix(0, ns)
			} else {
				r.UpdatedAt = time.Unix(0, ns)
			}
		default:
			r.Checkpoints[models.CheckpointID(k)] = v == "1"
		}
	}
	return r, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
