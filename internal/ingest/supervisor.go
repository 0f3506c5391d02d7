package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tokenpulse/internal/model"
	"tokenpulse/internal/storage"
	"tokenpulse/internal/stream"
)

// Invalidator clears cached derived state after a chain reorganization.
type Invalidator interface {
	InvalidateAll()
}

// SnapshotBuilder turns one block's transfer events into market snapshots.
type SnapshotBuilder interface {
	Aggregate(ctx context.Context, blockNumber uint64, blockHash string, events []model.TransferEvent) []model.MarketSnapshot
}

// Config holds runtime settings for the supervisor.
type Config struct {
	// Backoff is the fixed wait between session restarts on retryable errors.
	Backoff time.Duration
}

// Supervisor owns the long-lived streaming session. Messages are consumed
// strictly in arrival order: a block is decoded, aggregated, and persisted
// before the next message is read, so storage sees blocks in provider order.
type Supervisor struct {
	cfg         Config
	dialer      stream.Dialer
	invalidator Invalidator
	aggregator  SnapshotBuilder
	store       storage.SnapshotStore
	obs         Observer
	logger      *zap.Logger

	processed atomic.Uint64
}

func NewSupervisor(
	cfg Config,
	dialer stream.Dialer,
	invalidator Invalidator,
	aggregator SnapshotBuilder,
	store storage.SnapshotStore,
	obs Observer,
	logger *zap.Logger,
) *Supervisor {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if obs == nil {
		obs = NopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:         cfg,
		dialer:      dialer,
		invalidator: invalidator,
		aggregator:  aggregator,
		store:       store,
		obs:         obs,
		logger:      logger,
	}
}

// ProcessedBlocks reports the provider's last progress count. Liveness only.
func (s *Supervisor) ProcessedBlocks() uint64 {
	return s.processed.Load()
}

// Run streams until the session ends normally (stop block reached), a fatal
// error occurs, or ctx is cancelled. Retryable errors restart the session
// from the configured start block after a fixed backoff; the provider's
// cursor semantics make the replay safe because writes are idempotent.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.dialer == nil {
		return fmt.Errorf("stream dialer is nil")
	}
	if s.aggregator == nil {
		return fmt.Errorf("aggregator is nil")
	}
	if s.store == nil {
		return fmt.Errorf("snapshot store is nil")
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runSession(ctx)
		if err == nil {
			s.logger.Info("stream session completed")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := stream.Classify(err)
		if kind == stream.KindFatal {
			s.obs.SessionFatal(err)
			s.logger.Error("fatal stream error", zap.Error(err))
			return err
		}

		attempt++
		s.obs.SessionRetry(attempt, s.cfg.Backoff, err)
		s.logger.Warn("retryable stream error, restarting session",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", s.cfg.Backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(s.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Supervisor) runSession(ctx context.Context) error {
	sess, err := s.dialer.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	for {
		msg, err := sess.Recv(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrSessionEnded) {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case stream.BlockScopedData:
			if err := s.processBlock(ctx, m.Block); err != nil {
				return err
			}
		case stream.UndoSignal:
			// Applied before any later block-scoped data is read: a reorg
			// invalidates every cached derived value.
			if s.invalidator != nil {
				s.invalidator.InvalidateAll()
			}
			s.obs.CacheInvalidated(m.LastValidBlock)
			s.logger.Info("undo signal, caches invalidated",
				zap.Uint64("last_valid_block", m.LastValidBlock),
			)
		case stream.Progress:
			s.processed.Store(m.ProcessedBlocks)
			s.obs.Progress(m.ProcessedBlocks)
		}
	}
}

func (s *Supervisor) processBlock(ctx context.Context, block stream.Block) error {
	events := decodeBlock(block)
	snapshots := s.aggregator.Aggregate(ctx, block.Number, block.Hash, events)

	// Fail-fast: a persistence error aborts the remaining tokens of this
	// block. Prior writes stay; replay after reconnect overwrites them.
	for i := range snapshots {
		if err := s.store.Upsert(ctx, &snapshots[i]); err != nil {
			return fmt.Errorf("persist block %d: %w", block.Number, err)
		}
	}

	s.obs.BlockProcessed(block.Number, len(snapshots))
	s.logger.Debug("block processed",
		zap.Uint64("block_number", block.Number),
		zap.Int("events", len(events)),
		zap.Int("snapshots", len(snapshots)),
	)
	return nil
}
