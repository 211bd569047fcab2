package imaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qct/dashboard/pkg/pagination"
)

func newTestService(repo *fakeRepo) *Service {
	return NewService(NewActiveProvider(repo, false), repo, zerolog.Nop())
}

func repoWithStudies(n int) *fakeRepo {
	r := newFakeRepo()
	for i := 0; i < n; i++ {
		r.addStudy(fmt.Sprintf("ST-%02d", i), fmt.Sprintf("PAT-%02d", i), "", StatusReady, RiskLow, 1+i%28)
	}
	return r
}

func TestService_StudiesPageBeyondEnd(t *testing.T) {
	svc := newTestService(repoWithStudies(25))
	ctx := context.Background()

	last, err := svc.Studies(ctx, StudyFilter{}, pagination.Params{Page: 3, PerPage: 10})
	require.NoError(t, err)
	beyond, err := svc.Studies(ctx, StudyFilter{}, pagination.Params{Page: 10, PerPage: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, beyond.Pagination.TotalPages)
	assert.Equal(t, 3, beyond.Pagination.Page)
	assert.Equal(t, 25, beyond.Pagination.Total)
	assert.Len(t, beyond.Data, 5)
	assert.Equal(t, last.Data, beyond.Data)
}

func TestService_StudiesEmpty(t *testing.T) {
	svc := newTestService(newFakeRepo())
	page, err := svc.Studies(context.Background(), StudyFilter{Risk: RiskHigh}, pagination.Params{Page: 4, PerPage: 10})
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Equal(t, 1, page.Pagination.TotalPages)
	assert.Equal(t, 1, page.Pagination.Page)
}

func TestService_StudiesBaseQuery(t *testing.T) {
	svc := newTestService(repoWithStudies(3))
	page, err := svc.Studies(context.Background(), StudyFilter{Status: StatusReady, Search: "ST"}, pagination.Params{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Equal(t, "per_page=20&q=ST&status=ready", page.Pagination.BaseQuery)
}

func TestService_CountMatchesUnlimitedList(t *testing.T) {
	repo := repoWithStudies(12)
	repo.addStudy("X-1", "PAT-X", "Anon-X", StatusReview, RiskHigh, 5)
	ctx := context.Background()

	filters := []StudyFilter{
		{},
		{Status: StatusReview},
		{Risk: RiskHigh},
		{Status: StatusReady, Risk: RiskHigh},
		{Search: "anon-x"},
		{Search: "  "},
	}
	for _, f := range filters {
		n, err := repo.CountStudies(ctx, f)
		require.NoError(t, err)
		rows, err := repo.ListStudies(ctx, f, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, n, len(rows), "filter %+v", f)
	}
}

func TestService_Overview(t *testing.T) {
	repo := repoWithStudies(2)
	svc := newTestService(repo)
	ctx := context.Background()

	before, err := svc.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, before.RiskBreakdown, 3)

	repo.addStudy("HIGH-1", "PAT-H", "", StatusReady, RiskHigh, 9)
	after, err := svc.Overview(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.KPIs.HighRisk+1, after.KPIs.HighRisk)
	assert.Equal(t, before.RiskBreakdown[2].Value+1, after.RiskBreakdown[2].Value)
	assert.Equal(t, before.RiskBreakdown[0], after.RiskBreakdown[0])
	assert.Equal(t, before.RiskBreakdown[1], after.RiskBreakdown[1])
}

func addDetail(repo *fakeRepo, d *StudyDetail) string {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	repo.details[d.ID.String()] = d
	return d.ID.String()
}

func TestService_ViewStudyRecordsAudit(t *testing.T) {
	repo := newFakeRepo()
	id := addDetail(repo, &StudyDetail{StudyUID: "ST-1", OverallRisk: RiskLow, Nodules: []Nodule{}})
	svc := newTestService(repo)
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_inserts_total"}, []string{"result"})
	svc.SetAuditCounter(counter)

	userID := uuid.New()
	d, err := svc.ViewStudy(context.Background(), id, Viewer{UserID: userID.String(), IP: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, "", d.ImagePath)
	assert.Empty(t, d.DataWarnings)

	require.Len(t, repo.audits, 1)
	a := repo.audits[0]
	assert.Equal(t, userID, a.UserID)
	assert.Equal(t, d.ID, a.StudyID)
	assert.Equal(t, ActionView, a.Action)
	assert.Equal(t, "10.0.0.5", a.IPAddress)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("ok")))
}

func TestService_ViewStudyAuditFailure(t *testing.T) {
	repo := newFakeRepo()
	id := addDetail(repo, &StudyDetail{StudyUID: "ST-1"})
	repo.auditErr = errors.New("insert failed")
	svc := newTestService(repo)

	_, err := svc.ViewStudy(context.Background(), id, Viewer{UserID: uuid.NewString()})
	assert.ErrorIs(t, err, repo.auditErr)
}

func TestService_ViewStudyWithoutUserSkipsAudit(t *testing.T) {
	repo := newFakeRepo()
	id := addDetail(repo, &StudyDetail{StudyUID: "ST-1"})
	svc := newTestService(repo)

	_, err := svc.ViewStudy(context.Background(), id, Viewer{})
	require.NoError(t, err)
	assert.Empty(t, repo.audits)
}

func TestService_ViewStudyNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.ViewStudy(context.Background(), "not-a-uuid", Viewer{UserID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrStudyNotFound)
	assert.Empty(t, repo.audits)
}

func TestService_ViewStudyDataWarnings(t *testing.T) {
	repo := newFakeRepo()
	id := addDetail(repo, &StudyDetail{
		StudyUID:    "ST-1",
		OverallRisk: RiskLow,
		NoduleCount: 3,
		Summary:     &Summary{OverallRisk: RiskLow},
		Nodules:     []Nodule{{Risk: RiskHigh}},
	})
	svc := newTestService(repo)

	d, err := svc.ViewStudy(context.Background(), id, Viewer{UserID: uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, d.DataWarnings, 3)
	assert.Equal(t, 3, d.NoduleCount)
}

func TestService_FollowupsAndIngestionPaginate(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 7; i++ {
		repo.followups = append(repo.followups, FollowupRow{NoduleUID: fmt.Sprintf("N-%d", i), PatientUID: "PAT"})
		repo.ingestion = append(repo.ingestion, IngestionRow{StudyUID: fmt.Sprintf("ST-%d", i), Message: "ok"})
	}
	svc := newTestService(repo)
	ctx := context.Background()

	f, err := svc.Followups(ctx, SearchFilter{}, pagination.Params{Page: 9, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Pagination.Page)
	assert.Len(t, f.Data, 1)

	l, err := svc.IngestionLogs(ctx, SearchFilter{Search: "ST-4"}, pagination.Params{Page: 1, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Pagination.Total)
	assert.Equal(t, "per_page=3&q=ST-4", l.Pagination.BaseQuery)
}
