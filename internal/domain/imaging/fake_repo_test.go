package imaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory QueryRepository.
type fakeRepo struct {
	mu        sync.Mutex
	patients  int
	studies   []StudyRow
	nodules   int
	trend     []TrendPoint
	details   map[string]*StudyDetail
	followups []FollowupRow
	ingestion []IngestionRow
	audits    []AccessAudit
	auditErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{details: make(map[string]*StudyDetail)}
}

func (r *fakeRepo) addStudy(uid, patientUID, label, status, risk string, day int) StudyRow {
	s := StudyRow{
		ID:          uuid.New(),
		StudyUID:    uid,
		PatientUID:  patientUID,
		AnonLabel:   label,
		StudyDate:   NewDate(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)),
		Status:      status,
		OverallRisk: risk,
	}
	r.studies = append(r.studies, s)
	return s
}

func (r *fakeRepo) OverviewKPIs(context.Context) (KPIs, error) {
	high := 0
	for _, s := range r.studies {
		if s.OverallRisk == RiskHigh {
			high++
		}
	}
	return KPIs{TotalPatients: r.patients, TotalStudies: len(r.studies), TotalNodules: r.nodules, HighRisk: high}, nil
}

func (r *fakeRepo) RiskBreakdown(context.Context) ([]RiskCount, error) {
	counts := map[string]int{}
	for _, s := range r.studies {
		counts[s.OverallRisk]++
	}
	return breakdownFromCounts(counts), nil
}

func (r *fakeRepo) VolumeTrend(context.Context) ([]TrendPoint, error) {
	return append([]TrendPoint{}, r.trend...), nil
}

func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func window[T any](rows []T, limit, offset int) []T {
	if offset > len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]T, len(rows))
	copy(out, rows)
	return out
}

func (r *fakeRepo) filterStudies(f StudyFilter) []StudyRow {
	var out []StudyRow
	for _, s := range r.studies {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Risk != "" && s.OverallRisk != f.Risk {
			continue
		}
		if !matches(normalizeSearch(f.Search), s.StudyUID, s.PatientUID, s.AnonLabel) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (r *fakeRepo) ListStudies(_ context.Context, f StudyFilter, limit, offset int) ([]StudyRow, error) {
	return window(r.filterStudies(f), limit, offset), nil
}

func (r *fakeRepo) CountStudies(_ context.Context, f StudyFilter) (int, error) {
	return len(r.filterStudies(f)), nil
}

func (r *fakeRepo) StudyDetail(_ context.Context, id string) (*StudyDetail, error) {
	d, ok := r.details[id]
	if !ok {
		return nil, ErrStudyNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeRepo) filterFollowups(f SearchFilter) []FollowupRow {
	var out []FollowupRow
	for _, fr := range r.followups {
		if matches(normalizeSearch(f.Search), fr.PatientUID, fr.AnonLabel, fr.NoduleUID, fr.CurrentStudyUID, fr.PriorStudyUID) {
			out = append(out, fr)
		}
	}
	return out
}

func (r *fakeRepo) FollowupTimeline(_ context.Context, f SearchFilter, limit, offset int) ([]FollowupRow, error) {
	return window(r.filterFollowups(f), limit, offset), nil
}

func (r *fakeRepo) CountFollowups(_ context.Context, f SearchFilter) (int, error) {
	return len(r.filterFollowups(f)), nil
}

func (r *fakeRepo) filterIngestion(f SearchFilter) []IngestionRow {
	var out []IngestionRow
	for _, l := range r.ingestion {
		if matches(normalizeSearch(f.Search), l.PatientUID, l.AnonLabel, l.StudyUID, l.Message) {
			out = append(out, l)
		}
	}
	return out
}

func (r *fakeRepo) IngestionLogs(_ context.Context, f SearchFilter, limit, offset int) ([]IngestionRow, error) {
	return window(r.filterIngestion(f), limit, offset), nil
}

func (r *fakeRepo) CountIngestionLogs(_ context.Context, f SearchFilter) (int, error) {
	return len(r.filterIngestion(f)), nil
}

func (r *fakeRepo) RecordAccess(_ context.Context, a *AccessAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.auditErr != nil {
		return r.auditErr
	}
	r.audits = append(r.audits, *a)
	return nil
}
