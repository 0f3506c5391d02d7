package ingest

import "time"

// Observer receives the supervisor's structured lifecycle events. The retry
// policy itself lives in the supervisor; the observer only records what
// happened.
type Observer interface {
	// SessionRetry fires before each backoff wait.
	SessionRetry(attempt int, backoff time.Duration, err error)
	// SessionFatal fires once, right before Run surfaces a fatal error.
	SessionFatal(err error)
	// BlockProcessed fires after a block's snapshots are persisted.
	BlockProcessed(blockNumber uint64, snapshots int)
	// Progress fires on each provider progress message.
	Progress(processedBlocks uint64)
	// CacheInvalidated fires after an undo signal cleared the caches.
	CacheInvalidated(lastValidBlock uint64)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) SessionRetry(int, time.Duration, error) {}
func (NopObserver) SessionFatal(error)                     {}
func (NopObserver) BlockProcessed(uint64, int)             {}
func (NopObserver) Progress(uint64)                        {}
func (NopObserver) CacheInvalidated(uint64)                {}
