package refresh

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"aamonitor/internal/tree"
)

// Refresher runs the full refresh: status line first, then every tree
// provider.
type Refresher struct {
	source    StatusSource
	providers []tree.Provider
	logger    *zap.Logger

	mu     sync.RWMutex
	status StatusBar
}

func NewRefresher(source StatusSource, logger *zap.Logger, providers ...tree.Provider) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		source:    source,
		providers: providers,
		logger:    logger.Named("refresh"),
		status:    StartingStatus(),
	}
}

// Status returns the last computed status line.
func (r *Refresher) Status() StatusBar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// RefreshAll never fails as a whole: the returned error joins the individual
// failures for logging, and every provider has been updated (or reset) when
// it returns.
func (r *Refresher) RefreshAll(ctx context.Context) (StatusBar, error) {
	status, statusErr := ComputeStatus(ctx, r.source)
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	if statusErr != nil {
		r.logger.Warn("status bar update failed", zap.Error(statusErr))
	}

	errs := make([]error, len(r.providers))
	var wg sync.WaitGroup
	for i, p := range r.providers {
		wg.Add(1)
		go func(i int, p tree.Provider) {
			defer wg.Done()
			errs[i] = p.UpdateData(ctx)
		}(i, p)
	}
	wg.Wait()

	r.logger.Debug("refresh complete", zap.String("status", status.Text), zap.String("level", string(status.Level)))
	return status, errors.Join(append([]error{statusErr}, errs...)...)
}
