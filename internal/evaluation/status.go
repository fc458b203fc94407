package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cv-evaluator/internal/logger"

	"go.uber.org/zap"
)

// StatusReader answers point queries against persisted job state.
type StatusReader struct {
	source ViewSource
	cache  StatusCache
	logger *zap.Logger
}

// NewStatusReader builds a reader; cache may be nil.
func NewStatusReader(source ViewSource, cache StatusCache, log *zap.Logger) *StatusReader {
	return &StatusReader{source: source, cache: cache, logger: logger.WithFields(log)}
}

// Get returns the view of job id. Ids that were never admitted produce
// UnknownView and no error; only storage failures are returned as errors.
func (s *StatusReader) Get(ctx context.Context, id string) (View, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return UnknownView(id), nil
	}

	if s.cache != nil {
		view, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("status cache read failed", zap.String(logger.FieldJobID, id), zap.Error(err))
		} else if ok {
			return view, nil
		}
	}

	view, err := s.source.GetView(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return UnknownView(id), nil
		}
		return View{}, newError(KindPersistence, StageNone, fmt.Errorf("read job status: %w", err))
	}

	if s.cache != nil && view.Status.Terminal() {
		if err := s.cache.Set(ctx, view); err != nil {
			s.logger.Warn("status cache write failed", zap.String(logger.FieldJobID, id), zap.Error(err))
		}
	}

	return view, nil
}
