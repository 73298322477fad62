package metrics

import (
	"context"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/logger"
	"codeberg.org/kawashima/loadlog/internal/profiler"
)

type service struct {
	repo  Repository
	cfg   Config
	runID int64
	open  bool
}

// No-op implementation
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If the sample store is disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Sample store disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create sample repository")
		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Sample store initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) RecordRun(ctx context.Context, hdr *profiler.Header) error {
	errFactory := errors.New()

	if hdr == nil {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		id, err := s.repo.InsertRun(hdr)
		if err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
		s.runID = id
		s.open = true
	}

	return nil
}

func (s *service) RecordSample(ctx context.Context, sample *profiler.Sample) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.New(ErrInvalidSample)
	}
	if !s.open {
		return errFactory.New(ErrNoRun)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.InsertSample(s.runID, sample); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// No-op implementation
func (*noopCollector) RecordRun(_ context.Context, _ *profiler.Header) error {
	return nil
}

func (*noopCollector) RecordSample(_ context.Context, _ *profiler.Sample) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
