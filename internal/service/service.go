package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"elcedro/backend/internal/analytics"
	"elcedro/backend/internal/cache"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/ingest"
	"elcedro/backend/internal/prefs"
)

var ErrNoData = fmt.Errorf("no dataset loaded")

type Service struct {
	loader  *ingest.Loader
	dataDir string
	cache   cache.QueryCache
	ttl     time.Duration
	areas   map[string]float64
	views   prefs.Store
	log     zerolog.Logger

	mu sync.RWMutex
	ds *domain.Dataset
}

func New(loader *ingest.Loader, dataDir string, qc cache.QueryCache, ttl time.Duration, areas map[string]float64, views prefs.Store, log zerolog.Logger) *Service {
	if qc == nil {
		qc = cache.NewNoop()
	}
	if areas == nil {
		areas = domain.DefaultFloorAreas
	}
	return &Service{
		loader:  loader,
		dataDir: dataDir,
		cache:   qc,
		ttl:     ttl,
		areas:   areas,
		views:   views,
		log:     log,
	}
}

// Refresh reloads the whole dataset from the data directory and atomically
// swaps it in. Queries running against the old snapshot keep seeing it; the
// new dataset version makes all cached payloads unreachable.
func (s *Service) Refresh(ctx context.Context) (*ingest.Report, error) {
	ds, rep, err := s.loader.LoadDir(ctx, s.dataDir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()
	s.log.Info().
		Str("version", ds.Version).
		Int("lines", len(ds.Lines)).
		Int("files", ds.SourceFiles).
		Int("skipped", ds.SkippedFiles).
		Msg("dataset refreshed")
	return rep, nil
}

// Snapshot returns the current dataset, or nil before the first refresh.
func (s *Service) Snapshot() *domain.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Meta describes the loaded dataset for selector population.
type Meta struct {
	Version      string    `json:"version"`
	Lines        int       `json:"lines"`
	Years        []int     `json:"years"`
	Branches     []string  `json:"branches"`
	Families     []string  `json:"families"`
	Brands       []string  `json:"brands"`
	LoadedAt     time.Time `json:"loaded_at"`
	SourceFiles  int       `json:"source_files"`
	SkippedFiles int       `json:"skipped_files"`
}

func (s *Service) Meta() (Meta, error) {
	ds := s.Snapshot()
	if ds == nil {
		return Meta{}, ErrNoData
	}
	return Meta{
		Version:      ds.Version,
		Lines:        len(ds.Lines),
		Years:        ds.Years,
		Branches:     domain.Branches,
		Families:     ds.Families,
		Brands:       ds.Brands,
		LoadedAt:     ds.LoadedAt,
		SourceFiles:  ds.SourceFiles,
		SkippedFiles: ds.SkippedFiles,
	}, nil
}

// DefaultWindow returns the trailing-13-month filter ending at the latest
// month present in the data.
func (s *Service) DefaultWindow() (domain.FilterSpec, error) {
	ds := s.Snapshot()
	if ds == nil {
		return domain.FilterSpec{}, ErrNoData
	}
	f, ok := analytics.DefaultWindow(ds.Lines)
	if !ok {
		return domain.FilterSpec{}, ErrNoData
	}
	return f, nil
}

// area returns the floor area for a branch, falling back to the consolidated
// area for unknown branches.
func (s *Service) area(branch string) float64 {
	if a, ok := s.areas[branch]; ok {
		return a
	}
	return s.areas[domain.BranchAll]
}

// memoized serializes compute() and caches it under a dataset-versioned key.
func (s *Service) memoized(ctx context.Context, key string, compute func() (any, error)) ([]byte, error) {
	if payload, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return payload, nil
	} else if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	result, err := compute()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return payload, nil
}

func (s *Service) key(op string, ds *domain.Dataset, parts ...string) string {
	all := append([]string{op, ds.Version}, parts...)
	return strings.Join(all, "|")
}

// KPIReport pairs the current-period bundle with the same window one year
// earlier.
type KPIReport struct {
	Current  domain.KPIBundle `json:"current"`
	Previous domain.KPIBundle `json:"previous"`
}

// KPIPayload computes the headline KPI bundles for one filter.
func (s *Service) KPIPayload(ctx context.Context, f domain.FilterSpec) ([]byte, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, ErrNoData
	}
	f = f.Normalize()
	return s.memoized(ctx, s.key("kpis", ds, f.Key()), func() (any, error) {
		area := s.area(f.Branch)
		prior := f.WithYear(f.Year - 1)
		return KPIReport{
			Current:  analytics.KPIs(analytics.Filter(ds.Lines, f), f, area),
			Previous: analytics.KPIs(analytics.Filter(ds.Lines, prior), prior, area),
		}, nil
	})
}

// MonthlyWindowPayload computes the month-by-month rows for the filter's
// window, including trailing windows that cross the year boundary.
func (s *Service) MonthlyWindowPayload(ctx context.Context, f domain.FilterSpec) ([]byte, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, ErrNoData
	}
	f = f.Normalize()
	return s.memoized(ctx, s.key("monthly", ds, f.Key()), func() (any, error) {
		return analytics.MonthlyWindow(ds.Lines, f), nil
	})
}

// YearSummaryPayload computes the full-calendar-year summary, always 12 rows.
func (s *Service) YearSummaryPayload(ctx context.Context, f domain.FilterSpec) ([]byte, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, ErrNoData
	}
	f = f.Normalize()
	return s.memoized(ctx, s.key("year", ds, f.Key()), func() (any, error) {
		return analytics.MonthlySummary(ds.Lines, f), nil
	})
}

// BreakdownPayload computes a ranked dimensional breakdown.
func (s *Service) BreakdownPayload(ctx context.Context, f domain.FilterSpec, dim analytics.Dimension, topN int, excludeOther bool) ([]byte, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, ErrNoData
	}
	switch dim {
	case analytics.DimFamily, analytics.DimBrand, analytics.DimSalesperson, analytics.DimBranch:
	default:
		return nil, fmt.Errorf("unknown breakdown dimension %q", dim)
	}
	f = f.Normalize()
	key := s.key("breakdown", ds, string(dim), fmt.Sprintf("top=%d", topN), fmt.Sprintf("noother=%t", excludeOther), f.Key())
	return s.memoized(ctx, key, func() (any, error) {
		return analytics.Breakdown(ds.Lines, f, dim, topN, excludeOther), nil
	})
}

// VendorsPayload computes the salesperson productivity table.
func (s *Service) VendorsPayload(ctx context.Context, f domain.FilterSpec, topN int) ([]byte, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, ErrNoData
	}
	f = f.Normalize()
	key := s.key("vendors", ds, fmt.Sprintf("top=%d", topN), f.Key())
	return s.memoized(ctx, key, func() (any, error) {
		return analytics.VendorMetrics(ds.Lines, f, topN), nil
	})
}

// Transactions returns a page of filtered lines, uncached.
func (s *Service) Transactions(f domain.FilterSpec, limit, offset int) ([]domain.TransactionLine, int, error) {
	ds := s.Snapshot()
	if ds == nil {
		return nil, 0, ErrNoData
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	lines := analytics.Filter(ds.Lines, f.Normalize())
	total := len(lines)
	if offset >= total {
		return []domain.TransactionLine{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return lines[offset:end], total, nil
}

// Saved view passthrough with input validation.

func (s *Service) ListViews(ctx context.Context) ([]prefs.SavedView, error) {
	return s.views.List(ctx)
}

func (s *Service) GetView(ctx context.Context, name string) (prefs.SavedView, error) {
	return s.views.Get(ctx, name)
}

func (s *Service) PutView(ctx context.Context, view prefs.SavedView) error {
	view.Name = strings.TrimSpace(view.Name)
	if view.Name == "" {
		return fmt.Errorf("view name is required")
	}
	if view.Spec.MonthEnd != 0 || view.Spec.MonthStart != 0 {
		if view.Spec.MonthEnd < 1 || view.Spec.MonthEnd > 12 {
			return fmt.Errorf("month_end must be between 1 and 12")
		}
		if view.Spec.MonthStart > view.Spec.MonthEnd {
			return fmt.Errorf("month_start must not exceed month_end")
		}
	}
	view.Spec = view.Spec.Normalize()
	return s.views.Put(ctx, view)
}

func (s *Service) DeleteView(ctx context.Context, name string) error {
	return s.views.Delete(ctx, name)
}
