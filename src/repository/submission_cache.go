package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SubmissionCache contains the latest known state of a submission.
type SubmissionCache struct {
	SubmissionID uuid.UUID               `json:"submission_id"`
	ChainID      int64                   `json:"chain_id"`
	UserOpHash   common.Hash             `json:"user_op_hash"`
	TxHash       common.Hash             `json:"tx_hash"`
	Status       domain.SubmissionStatus `json:"status"`
	Error        string                  `json:"error"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// SubmissionCacheRepository handles Redis operations for the dispatch queue
// and submission status cache.
type SubmissionCacheRepository struct {
	redis       *redis.Client
	queueName   string
	statusCache string
}

func NewSubmissionCacheRepository(redis *redis.Client, queueName string) *SubmissionCacheRepository {
	return &SubmissionCacheRepository{
		redis:       redis,
		queueName:   queueName,
		statusCache: queueName + ":status",
	}
}

// EnqueueSubmission adds a submission to the dispatch queue
func (r *SubmissionCacheRepository) EnqueueSubmission(ctx context.Context, submission *domain.SubmissionModel) error {
	data, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	return r.redis.LPush(ctx, r.queueName, data).Err()
}

// DequeueSubmission pops a submission from the dispatch queue, blocking up
// to timeout. Returns redis.Nil when the queue stays empty.
func (r *SubmissionCacheRepository) DequeueSubmission(ctx context.Context, timeout time.Duration) (*domain.SubmissionModel, error) {
	result, err := r.redis.BRPop(ctx, timeout, r.queueName).Result()
	if err != nil {
		return nil, err
	}

	var submission domain.SubmissionModel
	if err := json.Unmarshal([]byte(result[1]), &submission); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}

	return &submission, nil
}

// GetSubmissionCache retrieves the cached state by submission ID
func (r *SubmissionCacheRepository) GetSubmissionCache(ctx context.Context, submissionID uuid.UUID) (*SubmissionCache, error) {
	statusKey := fmt.Sprintf("%s:%s", r.statusCache, submissionID)
	data, err := r.redis.Get(ctx, statusKey).Result()
	if err != nil {
		return nil, err
	}

	var cache SubmissionCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission cache: %w", err)
	}

	return &cache, nil
}

// SetSubmissionCache stores the state with 24-hour expiration
func (r *SubmissionCacheRepository) SetSubmissionCache(ctx context.Context, cache *SubmissionCache) error {
	statusKey := fmt.Sprintf("%s:%s", r.statusCache, cache.SubmissionID)
	cache.UpdatedAt = time.Now()

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal submission cache: %w", err)
	}

	return r.redis.Set(ctx, statusKey, data, 24*time.Hour).Err()
}

// SetSubmissionStatus updates only the status and error message
func (r *SubmissionCacheRepository) SetSubmissionStatus(ctx context.Context, submissionID uuid.UUID, status domain.SubmissionStatus, errorMessage string) error {
	cache, err := r.GetSubmissionCache(ctx, submissionID)
	if err != nil {
		if err != redis.Nil {
			return err
		}
		cache = &SubmissionCache{SubmissionID: submissionID}
	}

	cache.Status = status
	cache.Error = errorMessage
	return r.SetSubmissionCache(ctx, cache)
}

// DeleteSubmissionCache removes the cached state by submission ID
func (r *SubmissionCacheRepository) DeleteSubmissionCache(ctx context.Context, submissionID uuid.UUID) error {
	statusKey := fmt.Sprintf("%s:%s", r.statusCache, submissionID)
	return r.redis.Del(ctx, statusKey).Err()
}
