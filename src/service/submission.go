package service

import (
	"context"
	"errors"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SubmissionService maintains the persisted dispatch history. The Redis
// cache answers status polls without hitting Postgres; the database row is
// the durable record.
type SubmissionService struct {
	submissionRepo *repository.SubmissionRepository
	cacheRepo      *repository.SubmissionCacheRepository
}

func NewSubmissionService(submissionRepo *repository.SubmissionRepository, cacheRepo *repository.SubmissionCacheRepository) *SubmissionService {
	return &SubmissionService{
		submissionRepo: submissionRepo,
		cacheRepo:      cacheRepo,
	}
}

// logger wraps the execution context with component info
func (s *SubmissionService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "submission").Logger()
	return &l
}

// RegisterSubmission persists a new submission and places it on the
// dispatch queue.
func (s *SubmissionService) RegisterSubmission(ctx context.Context, accountAddress common.Address, chainId int64, entryPoint common.Address, calls []domain.Call) (*domain.SubmissionModel, error) {
	submission, err := s.submissionRepo.CreateSubmission(accountAddress, chainId, entryPoint, calls)
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("failed to create submission")
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to create submission"))
	}

	if err := s.cacheRepo.EnqueueSubmission(ctx, submission); err != nil {
		s.logger(ctx).Error().Err(err).
			Str("submission_id", submission.ID.String()).
			Msg("failed to enqueue submission")
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to enqueue submission"))
	}

	if err := s.cacheRepo.SetSubmissionCache(ctx, &repository.SubmissionCache{
		SubmissionID: submission.ID,
		ChainID:      chainId,
		Status:       domain.SubmissionStatusQueued,
	}); err != nil {
		s.logger(ctx).Warn().Err(err).
			Str("submission_id", submission.ID.String()).
			Msg("failed to cache submission status")
	}

	s.logger(ctx).Info().
		Str("submission_id", submission.ID.String()).
		Int("call_count", len(calls)).
		Msg("submission registered")

	return submission, nil
}

// GetSubmissionStatus answers a status poll, preferring the cache.
func (s *SubmissionService) GetSubmissionStatus(ctx context.Context, id uuid.UUID) (*repository.SubmissionCache, error) {
	cache, err := s.cacheRepo.GetSubmissionCache(ctx, id)
	if err == nil {
		return cache, nil
	}
	if err != redis.Nil {
		s.logger(ctx).Warn().Err(err).
			Str("submission_id", id.String()).
			Msg("cache lookup failed, falling back to database")
	}

	submission, err := s.submissionRepo.FindSubmissionById(id.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg("Submission not found"))
		}
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to load submission"))
	}

	return &repository.SubmissionCache{
		SubmissionID: submission.ID,
		ChainID:      submission.ChainId,
		UserOpHash:   common.HexToHash(submission.UserOpHash),
		TxHash:       common.HexToHash(submission.TxHash),
		Status:       submission.Status,
		Error:        submission.ErrorMessage,
		UpdatedAt:    submission.UpdatedAt,
	}, nil
}

// GetSubmission returns the durable record.
func (s *SubmissionService) GetSubmission(ctx context.Context, id uuid.UUID) (*domain.SubmissionModel, error) {
	submission, err := s.submissionRepo.FindSubmissionById(id.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg("Submission not found"))
		}
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to load submission"))
	}
	return submission, nil
}

// MarkProcessing flags a dequeued submission as in flight.
func (s *SubmissionService) MarkProcessing(ctx context.Context, id uuid.UUID) {
	if err := s.submissionRepo.UpdateSubmissionStatus(id.String(), domain.SubmissionStatusProcessing); err != nil {
		s.logger(ctx).Error().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to mark submission processing")
	}
	if err := s.cacheRepo.SetSubmissionStatus(ctx, id, domain.SubmissionStatusProcessing, ""); err != nil {
		s.logger(ctx).Warn().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to update submission cache")
	}
}

// MarkCompleted records a successful dispatch.
func (s *SubmissionService) MarkCompleted(ctx context.Context, id uuid.UUID, chainId int64, result *domain.SubmissionResult) {
	if err := s.submissionRepo.MarkSubmissionCompleted(id.String(), result); err != nil {
		s.logger(ctx).Error().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to mark submission completed")
	}
	if err := s.cacheRepo.SetSubmissionCache(ctx, &repository.SubmissionCache{
		SubmissionID: id,
		ChainID:      chainId,
		UserOpHash:   result.UserOpHash,
		TxHash:       result.TxHash,
		Status:       domain.SubmissionStatusCompleted,
	}); err != nil {
		s.logger(ctx).Warn().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to update submission cache")
	}
}

// MarkFailed records a failed dispatch with its error class.
func (s *SubmissionService) MarkFailed(ctx context.Context, id uuid.UUID, dispatchErr error) {
	errorName := domain.ErrorName(dispatchErr)
	if err := s.submissionRepo.MarkSubmissionFailed(id.String(), errorName, dispatchErr.Error()); err != nil {
		s.logger(ctx).Error().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to mark submission failed")
	}
	if err := s.cacheRepo.SetSubmissionStatus(ctx, id, domain.SubmissionStatusFailed, dispatchErr.Error()); err != nil {
		s.logger(ctx).Warn().Err(err).
			Str("submission_id", id.String()).
			Msg("failed to update submission cache")
	}
}
