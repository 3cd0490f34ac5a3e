package service

import (
	"context"
	"sync"
	"time"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/repository"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// DispatchWorker consumes queued submissions and runs them through the
// dispatcher one at a time.
type DispatchWorker struct {
	dispatcher        *DispatcherService
	submissionService *SubmissionService
	cacheRepo         *repository.SubmissionCacheRepository
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
}

func NewDispatchWorker(ctx context.Context, dispatcher *DispatcherService, submissionService *SubmissionService, cacheRepo *repository.SubmissionCacheRepository) *DispatchWorker {
	ctx, cancel := context.WithCancel(ctx)

	return &DispatchWorker{
		dispatcher:        dispatcher,
		submissionService: submissionService,
		cacheRepo:         cacheRepo,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins consuming the dispatch queue
func (w *DispatchWorker) Start() {
	w.wg.Add(1)
	go w.consume()
}

// Stop gracefully shuts down the worker
func (w *DispatchWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *DispatchWorker) consume() {
	defer w.wg.Done()

	logger := zerolog.Ctx(w.ctx).With().Str("component", "dispatch-worker").Logger()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			submission, err := w.cacheRepo.DequeueSubmission(w.ctx, 1*time.Second)
			if err != nil {
				if err == redis.Nil {
					continue
				}

				// if context was cancelled (during shutdown), ignore error
				if w.ctx.Err() != nil {
					return
				}

				logger.Error().Err(err).Msg("Error popping from dispatch queue")
				continue
			}

			w.processSubmission(submission)
		}
	}
}

func (w *DispatchWorker) processSubmission(submission *domain.SubmissionModel) {
	logger := zerolog.Ctx(w.ctx).With().
		Str("component", "dispatch-worker").
		Str("submission_id", submission.ID.String()).
		Logger()
	ctx := logger.WithContext(w.ctx)

	logger.Info().Msg("processing submission")
	w.submissionService.MarkProcessing(ctx, submission.ID)

	calls, err := submission.GetCalls()
	if err != nil {
		logger.Error().Err(err).Msg("submission has malformed calls")
		w.submissionService.MarkFailed(ctx, submission.ID,
			domain.NewError(domain.ErrorCodeConfiguration, err, domain.WithMsg("Malformed calls")))
		return
	}

	result, err := w.dispatcher.Dispatch(ctx, calls)
	if err != nil {
		logger.Error().Err(err).
			Str("error_name", domain.ErrorName(err)).
			Msg("dispatch failed")
		w.submissionService.MarkFailed(ctx, submission.ID, err)
		return
	}

	logger.Info().
		Str("user_op_hash", result.UserOpHash.Hex()).
		Str("tx_hash", result.TxHash.Hex()).
		Msg("submission completed")
	w.submissionService.MarkCompleted(ctx, submission.ID, submission.ChainId, result)
}
