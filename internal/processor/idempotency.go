package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("notification already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL            time.Duration
	ProcessedTTL       time.Duration
	MaxRetries         int
	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "notification:retry:",
		LockKeyPrefix:      "notification:lock:",
		ProcessedKeyPrefix: "notification:processed:",
	}
}

// IdempotencyService makes sure one notification id is sent at most once
// within ProcessedTTL, and gives up on it after MaxRetries failures.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(adapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  adapter,
		config: config,
	}
}

type ProcessingContext struct {
	ID           string
	RetryCount   int
	lockAcquired bool
}

func (pc *ProcessingContext) IsRetry() bool { return pc.RetryCount > 0 }

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, id string) (*ProcessingContext, error) {
	processed, err := s.IsProcessed(ctx, id)
	if err != nil {
		// a duplicate SMS is better than a lost one
		logger.Warn("failed to check processed status", "id", id, "error", err)
	} else if processed {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, id)
	if err != nil {
		logger.Warn("failed to read retry counter", "id", id, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: id=%s, retries=%d", ErrMaxRetriesExceeded, id, retryCount)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+id, lockValue, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "id", id, "retry_count", retryCount)
	return &ProcessingContext{
		ID:           id,
		RetryCount:   retryCount,
		lockAcquired: true,
	}, nil
}

// MarkSuccess records id as processed and drops its lock and retry counter.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.ID, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	if err := s.redis.Del(ctx, s.config.RetryKeyPrefix+pc.ID); err != nil {
		logger.Warn("failed to clean up retry counter", "id", pc.ID, "error", err)
	}
	return s.ReleaseLock(ctx, pc)
}

// MarkFailure bumps the retry counter and releases the lock so another
// delivery can try again.
func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	count, err := s.redis.Incr(ctx, s.config.RetryKeyPrefix+pc.ID, s.config.ProcessedTTL)
	if err != nil {
		logger.Error("failed to increment retry counter", "id", pc.ID, "error", err)
	}

	logger.Warn("notification delivery failed",
		"id", pc.ID,
		"retry_count", count,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return s.ReleaseLock(ctx, pc)
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}

	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.ID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, id string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+id)
	if errors.Is(err, redis.NilError) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, id string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+id)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
