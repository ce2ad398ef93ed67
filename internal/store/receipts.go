// Package store keeps payment receipts and the duplicate-submission guard in Redis.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/service"
)

const (
	// ServiceName is the registry name of the receipt store.
	ServiceName = "receipts"

	receiptKeyPrefix = "receipt:"
	lockKeyPrefix    = "lock:"

	defaultTTL     = 72 * time.Hour
	maxSaveRetries = 3
)

// ReceiptStatus is the outcome recorded for a submission attempt.
type ReceiptStatus string

const (
	// ReceiptSubmitted means the submission service accepted the transaction.
	ReceiptSubmitted ReceiptStatus = "submitted"
	// ReceiptFailed means the attempt failed at some stage.
	ReceiptFailed ReceiptStatus = "failed"
)

// Receipt records the last submission attempt for a transaction hash.
type Receipt struct {
	TxHash       string        `json:"tx_hash"`
	Status       ReceiptStatus `json:"status"`
	WitnessCount int           `json:"witness_count"`
	Stage        string        `json:"stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
}

// RedisStore handles the storage and retrieval of receipts using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logging.Logger

	mu     sync.RWMutex
	status service.Status
}

// NewRedisStore creates a store from the redis config section. It does not
// connect until Start.
func NewRedisStore(cfg config.RedisConfig, logger *logging.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg, logger)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, cfg config.RedisConfig, logger *logging.Logger) *RedisStore {
	ttl := cfg.ReceiptTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
		logger: logger.WithField("service", ServiceName),
		status: service.StatusStopped,
	}
}

func (s *RedisStore) receiptKey(txHash string) string { return s.prefix + receiptKeyPrefix + txHash }
func (s *RedisStore) lockKey(txHash string) string    { return s.prefix + lockKeyPrefix + txHash }

// Reserve claims txHash for one submission. It returns false when the hash
// is already claimed.
func (s *RedisStore) Reserve(ctx context.Context, txHash string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(txHash), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, errors.StorageWrap(err, errors.OpReserveHash, errors.StorageErrWrite, "Failed to reserve transaction hash")
	}
	return ok, nil
}

// Release drops a claim so the same transaction can be submitted again.
func (s *RedisStore) Release(ctx context.Context, txHash string) error {
	if err := s.client.Del(ctx, s.lockKey(txHash)).Err(); err != nil {
		return errors.StorageWrap(err, errors.OpReleaseHash, errors.StorageErrWrite, "Failed to release transaction hash")
	}
	return nil
}

// Save stores r under its hash, replacing any earlier receipt. A failed
// attempt never replaces a receipt recording an accepted submission.
func (s *RedisStore) Save(ctx context.Context, r Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.StorageWrap(err, errors.OpSerialize, errors.StorageErrSerialization, "Failed to encode receipt")
	}

	key := s.receiptKey(r.TxHash)
	if r.Status != ReceiptFailed {
		err = s.client.Set(ctx, key, data, s.ttl).Err()
	} else {
		err = s.saveUnlessSubmitted(ctx, key, data)
	}
	if err != nil {
		return errors.StorageWrap(err, errors.OpSaveReceipt, errors.StorageErrWrite, "Failed to store receipt")
	}
	return nil
}

// saveUnlessSubmitted writes data to key inside a WATCH so a concurrent
// successful attempt cannot be overwritten between the read and the write.
func (s *RedisStore) saveUnlessSubmitted(ctx context.Context, key string, data []byte) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var existing Receipt
			if json.Unmarshal(current, &existing) == nil && existing.Status == ReceiptSubmitted {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxSaveRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return err
}

// Get returns the receipt for txHash.
func (s *RedisStore) Get(ctx context.Context, txHash string) (*Receipt, error) {
	data, err := s.client.Get(ctx, s.receiptKey(txHash)).Bytes()
	if err == redis.Nil {
		return nil, errors.WrapWithOperation(
			errors.NewStorageError(errors.StorageErrNotFound, "Receipt not found", err), errors.OpLoadReceipt)
	}
	if err != nil {
		return nil, errors.StorageWrap(err, errors.OpLoadReceipt, errors.StorageErrRead, "Failed to read receipt")
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.StorageWrap(err, errors.OpDeserialize, errors.StorageErrSerialization, "Failed to decode receipt")
	}
	return &r, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Name implements service.Service.
func (s *RedisStore) Name() string { return ServiceName }

// Dependencies implements service.Service.
func (s *RedisStore) Dependencies() []string { return nil }

// Start verifies the connection.
func (s *RedisStore) Start(ctx context.Context) error {
	s.setStatus(service.StatusStarting)
	if err := s.Ping(ctx); err != nil {
		s.setStatus(service.StatusError)
		return errors.StorageWrap(err, errors.OpConnect, errors.StorageErrConnection, "Failed to connect to Redis")
	}
	s.setStatus(service.StatusRunning)
	s.logger.Info("Receipt store connected")
	return nil
}

// Stop closes the connection.
func (s *RedisStore) Stop(ctx context.Context) error {
	s.setStatus(service.StatusStopping)
	err := s.client.Close()
	s.setStatus(service.StatusStopped)
	return err
}

// Status implements service.Service.
func (s *RedisStore) Status() service.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Health pings Redis with a short deadline.
func (s *RedisStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Ping(ctx)
}

func (s *RedisStore) setStatus(status service.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
