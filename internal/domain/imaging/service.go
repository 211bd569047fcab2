package imaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/qct/dashboard/pkg/pagination"
)

// ListPage is one page of a listing together with its pagination metadata.
type ListPage[T any] struct {
	Data       []T             `json:"data"`
	Pagination pagination.Page `json:"pagination"`
}

// Viewer identifies who opened a study detail view.
type Viewer struct {
	UserID string
	IP     string
}

type Service struct {
	provider Provider
	audit    AuditRecorder
	logger   zerolog.Logger
	inserts  *prometheus.CounterVec
}

// NewService creates the dashboard service. audit may be nil when no
// database backs the deployment.
func NewService(provider Provider, audit AuditRecorder, logger zerolog.Logger) *Service {
	return &Service{provider: provider, audit: audit, logger: logger}
}

// SetAuditCounter counts audit inserts by result ("ok" or "error").
func (s *Service) SetAuditCounter(c *prometheus.CounterVec) { s.inserts = c }

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	kpis, err := s.provider.OverviewKPIs(ctx)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.provider.RiskBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	trend, err := s.provider.VolumeTrend(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{KPIs: kpis, RiskBreakdown: breakdown, VolumeTrend: trend}, nil
}

func (s *Service) Studies(ctx context.Context, f StudyFilter, p pagination.Params) (*ListPage[StudyRow], error) {
	return listPage(ctx, p, f.Params(),
		func(ctx context.Context) (int, error) { return s.provider.CountStudies(ctx, f) },
		func(ctx context.Context, limit, offset int) ([]StudyRow, error) {
			return s.provider.ListStudies(ctx, f, limit, offset)
		})
}

func (s *Service) Followups(ctx context.Context, f SearchFilter, p pagination.Params) (*ListPage[FollowupRow], error) {
	return listPage(ctx, p, f.Params(),
		func(ctx context.Context) (int, error) { return s.provider.CountFollowups(ctx, f) },
		func(ctx context.Context, limit, offset int) ([]FollowupRow, error) {
			return s.provider.FollowupTimeline(ctx, f, limit, offset)
		})
}

func (s *Service) IngestionLogs(ctx context.Context, f SearchFilter, p pagination.Params) (*ListPage[IngestionRow], error) {
	return listPage(ctx, p, f.Params(),
		func(ctx context.Context) (int, error) { return s.provider.CountIngestionLogs(ctx, f) },
		func(ctx context.Context, limit, offset int) ([]IngestionRow, error) {
			return s.provider.IngestionLogs(ctx, f, limit, offset)
		})
}

// listPage counts first so an out-of-range page resolves to the last page
// before any rows are read.
func listPage[T any](
	ctx context.Context,
	p pagination.Params,
	filters map[string]string,
	count func(context.Context) (int, error),
	list func(ctx context.Context, limit, offset int) ([]T, error),
) (*ListPage[T], error) {
	total, err := count(ctx)
	if err != nil {
		return nil, err
	}
	page := p.Resolve(total).WithFilters(filters)

	rows, err := list(ctx, page.Limit(), page.Offset)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return &ListPage[T]{Data: rows, Pagination: page}, nil
}

// ViewStudy loads one study for display and appends an access audit row for
// the viewer. The detail's DataWarnings lists cached fields that disagree
// with the nodule rows.
func (s *Service) ViewStudy(ctx context.Context, id string, v Viewer) (*StudyDetail, error) {
	d, err := s.provider.StudyDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	d.DataWarnings = d.CheckConsistency()
	if len(d.DataWarnings) > 0 {
		s.logger.Warn().
			Str("study_id", d.ID.String()).
			Strs("warnings", d.DataWarnings).
			Msg("study derived fields are inconsistent")
	}

	if err := s.recordView(ctx, d.ID, v); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) recordView(ctx context.Context, studyID uuid.UUID, v Viewer) error {
	if s.audit == nil {
		return nil
	}
	userID, err := uuid.Parse(v.UserID)
	if err != nil {
		s.logger.Warn().Str("study_id", studyID.String()).Msg("study viewed without a user id; access not audited")
		return nil
	}

	err = s.audit.RecordAccess(ctx, &AccessAudit{
		UserID:    userID,
		StudyID:   studyID,
		Action:    ActionView,
		IPAddress: v.IP,
	})
	if err != nil {
		s.countInsert("error")
		return fmt.Errorf("audit study view: %w", err)
	}
	s.countInsert("ok")
	return nil
}

func (s *Service) countInsert(result string) {
	if s.inserts != nil {
		s.inserts.WithLabelValues(result).Inc()
	}
}
