package imaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Provider is what handlers read from: the query layer's read operations,
// returning rows whose patient identifiers are display-ready.
type Provider interface {
	Reader
}

// Data source selectors understood by NewProvider.
const (
	SourceMock     = "mock"
	SourceDatabase = "database"
	SourceOrthanc  = "orthanc"
)

type ProviderConfig struct {
	DataSource string
	// MockData marks a deployment that is expected to run without real data.
	MockData bool
	AllowPHI bool
}

// StartupNotice records a one-time process-wide warning. main owns the single
// instance and passes it to NewProvider.
type StartupNotice struct {
	once    sync.Once
	emitted atomic.Bool
}

// Warn logs msg at warn level the first time it is called; later calls do
// nothing.
func (n *StartupNotice) Warn(logger zerolog.Logger, source, msg string) {
	n.once.Do(func() {
		logger.Warn().Str("data_source", source).Msg(msg)
		n.emitted.Store(true)
	})
}

// Emitted reports whether the warning has been logged.
func (n *StartupNotice) Emitted() bool {
	return n.emitted.Load()
}

// NewProvider selects the provider for cfg.DataSource. Selecting the stub on a
// deployment not marked MockData logs a warning once per notice.
func NewProvider(cfg ProviderConfig, repo Reader, logger zerolog.Logger, notice *StartupNotice) (Provider, error) {
	switch cfg.DataSource {
	case "", SourceMock, SourceDatabase:
		if repo == nil {
			return nil, fmt.Errorf("data source %q needs a query repository", cfg.DataSource)
		}
		return NewActiveProvider(repo, cfg.AllowPHI), nil
	case SourceOrthanc:
		if !cfg.MockData && notice != nil {
			notice.Warn(logger, cfg.DataSource,
				"orthanc data source is not implemented; serving empty results")
		}
		return StubProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

// ActiveProvider reads through the query layer and masks every patient
// identifier it returns.
type ActiveProvider struct {
	repo     Reader
	allowPHI bool
}

func NewActiveProvider(repo Reader, allowPHI bool) *ActiveProvider {
	return &ActiveProvider{repo: repo, allowPHI: allowPHI}
}

func (p *ActiveProvider) mask(uid, label string) string {
	return MaskPatientIdentifier(uid, label, p.allowPHI)
}

func (p *ActiveProvider) OverviewKPIs(ctx context.Context) (KPIs, error) {
	return p.repo.OverviewKPIs(ctx)
}

func (p *ActiveProvider) RiskBreakdown(ctx context.Context) ([]RiskCount, error) {
	return p.repo.RiskBreakdown(ctx)
}

func (p *ActiveProvider) VolumeTrend(ctx context.Context) ([]TrendPoint, error) {
	return p.repo.VolumeTrend(ctx)
}

func (p *ActiveProvider) ListStudies(ctx context.Context, f StudyFilter, limit, offset int) ([]StudyRow, error) {
	rows, err := p.repo.ListStudies(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].PatientUID = p.mask(rows[i].PatientUID, rows[i].AnonLabel)
	}
	return rows, nil
}

func (p *ActiveProvider) CountStudies(ctx context.Context, f StudyFilter) (int, error) {
	return p.repo.CountStudies(ctx, f)
}

func (p *ActiveProvider) StudyDetail(ctx context.Context, id string) (*StudyDetail, error) {
	d, err := p.repo.StudyDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	d.PatientUID = p.mask(d.PatientUID, d.AnonLabel)
	return d, nil
}

func (p *ActiveProvider) FollowupTimeline(ctx context.Context, f SearchFilter, limit, offset int) ([]FollowupRow, error) {
	rows, err := p.repo.FollowupTimeline(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].PatientUID = p.mask(rows[i].PatientUID, rows[i].AnonLabel)
	}
	return rows, nil
}

func (p *ActiveProvider) CountFollowups(ctx context.Context, f SearchFilter) (int, error) {
	return p.repo.CountFollowups(ctx, f)
}

func (p *ActiveProvider) IngestionLogs(ctx context.Context, f SearchFilter, limit, offset int) ([]IngestionRow, error) {
	rows, err := p.repo.IngestionLogs(ctx, f, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].PatientUID = p.mask(rows[i].PatientUID, rows[i].AnonLabel)
	}
	return rows, nil
}

func (p *ActiveProvider) CountIngestionLogs(ctx context.Context, f SearchFilter) (int, error) {
	return p.repo.CountIngestionLogs(ctx, f)
}

// StubProvider stands in for the unimplemented Orthanc data source. Every
// result is empty or zero but has the same shape as the active provider's.
type StubProvider struct{}

func (StubProvider) OverviewKPIs(context.Context) (KPIs, error) {
	return KPIs{}, nil
}

func (StubProvider) RiskBreakdown(context.Context) ([]RiskCount, error) {
	return breakdownFromCounts(nil), nil
}

func (StubProvider) VolumeTrend(context.Context) ([]TrendPoint, error) {
	return []TrendPoint{}, nil
}

func (StubProvider) ListStudies(context.Context, StudyFilter, int, int) ([]StudyRow, error) {
	return []StudyRow{}, nil
}

func (StubProvider) CountStudies(context.Context, StudyFilter) (int, error) {
	return 0, nil
}

func (StubProvider) StudyDetail(context.Context, string) (*StudyDetail, error) {
	return nil, ErrStudyNotFound
}

func (StubProvider) FollowupTimeline(context.Context, SearchFilter, int, int) ([]FollowupRow, error) {
	return []FollowupRow{}, nil
}

func (StubProvider) CountFollowups(context.Context, SearchFilter) (int, error) {
	return 0, nil
}

func (StubProvider) IngestionLogs(context.Context, SearchFilter, int, int) ([]IngestionRow, error) {
	return []IngestionRow{}, nil
}

func (StubProvider) CountIngestionLogs(context.Context, SearchFilter) (int, error) {
	return 0, nil
}

var (
	_ Provider        = (*ActiveProvider)(nil)
	_ Provider        = StubProvider{}
	_ QueryRepository = (*QueryRepoPG)(nil)
)
