package imaging

import (
	"context"
	"errors"
)

// ErrStudyNotFound is returned for an unknown or malformed study id.
var ErrStudyNotFound = errors.New("study not found")

// Reader holds the read-only projections shared by the query layer and every
// data provider. A limit <= 0 means no limit.
type Reader interface {
	OverviewKPIs(ctx context.Context) (KPIs, error)
	RiskBreakdown(ctx context.Context) ([]RiskCount, error)
	VolumeTrend(ctx context.Context) ([]TrendPoint, error)

	ListStudies(ctx context.Context, f StudyFilter, limit, offset int) ([]StudyRow, error)
	CountStudies(ctx context.Context, f StudyFilter) (int, error)
	StudyDetail(ctx context.Context, id string) (*StudyDetail, error)

	FollowupTimeline(ctx context.Context, f SearchFilter, limit, offset int) ([]FollowupRow, error)
	CountFollowups(ctx context.Context, f SearchFilter) (int, error)

	IngestionLogs(ctx context.Context, f SearchFilter, limit, offset int) ([]IngestionRow, error)
	CountIngestionLogs(ctx context.Context, f SearchFilter) (int, error)
}

// AuditRecorder appends access audit rows.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, a *AccessAudit) error
}

// QueryRepository is the database-backed query layer. Its only write is
// RecordAccess.
type QueryRepository interface {
	Reader
	AuditRecorder
}
