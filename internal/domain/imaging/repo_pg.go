package imaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qct/dashboard/internal/platform/db"
)

type QueryRepoPG struct {
	pool db.Queryable
}

// NewQueryRepoPG creates the query layer. pool is used when no request-scoped
// connection is attached to the context.
func NewQueryRepoPG(pool db.Queryable) *QueryRepoPG {
	return &QueryRepoPG{pool: pool}
}

func (r *QueryRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Resolve(ctx, r.pool)
}

// conds accumulates AND-ed WHERE clauses with positional arguments.
type conds struct {
	where []string
	args  []interface{}
}

func (c *conds) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.where = append(c.where, fmt.Sprintf(clause, len(c.args)))
}

// search adds one ILIKE substring match across all columns sharing the
// same placeholder.
func (c *conds) search(term string, columns ...string) {
	term = normalizeSearch(term)
	if term == "" {
		return
	}
	c.args = append(c.args, "%"+escapeLike(term)+"%")
	idx := len(c.args)
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", col, idx)
	}
	c.where = append(c.where, "("+strings.Join(parts, " OR ")+")")
}

func (c *conds) clause() string {
	if len(c.where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.where, " AND ")
}

// page appends LIMIT/OFFSET placeholders. limit <= 0 means no limit.
func (c *conds) page(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		c.args = append(c.args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(c.args))
	}
	if offset > 0 {
		c.args = append(c.args, offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(c.args))
	}
	return sb.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes the term match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *QueryRepoPG) OverviewKPIs(ctx context.Context) (KPIs, error) {
	var k KPIs
	err := r.conn(ctx).QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM patients),
		(SELECT COUNT(*) FROM studies),
		(SELECT COUNT(*) FROM qct_nodules),
		(SELECT COUNT(*) FROM studies WHERE overall_risk = $1)`, RiskHigh,
	).Scan(&k.TotalPatients, &k.TotalStudies, &k.TotalNodules, &k.HighRisk)
	if err != nil {
		return KPIs{}, fmt.Errorf("overview kpis: %w", err)
	}
	return k, nil
}

func (r *QueryRepoPG) RiskBreakdown(ctx context.Context) ([]RiskCount, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT overall_risk, COUNT(*) FROM studies GROUP BY overall_risk`)
	if err != nil {
		return nil, fmt.Errorf("risk breakdown: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(RiskOrder))
	for rows.Next() {
		var risk string
		var n int
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, fmt.Errorf("scan risk breakdown: %w", err)
		}
		counts[risk] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("risk breakdown: %w", err)
	}
	return breakdownFromCounts(counts), nil
}

// breakdownFromCounts emits one entry per level of RiskOrder, zero-filled.
func breakdownFromCounts(counts map[string]int) []RiskCount {
	out := make([]RiskCount, len(RiskOrder))
	for i, risk := range RiskOrder {
		out[i] = RiskCount{Label: risk, Value: counts[risk]}
	}
	return out
}

func (r *QueryRepoPG) VolumeTrend(ctx context.Context) ([]TrendPoint, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT s.study_date, AVG(q.volume_total_mm3)
		FROM studies s
		JOIN qct_summaries q ON q.study_id = s.id
		GROUP BY s.study_date
		ORDER BY s.study_date`)
	if err != nil {
		return nil, fmt.Errorf("volume trend: %w", err)
	}
	defer rows.Close()

	points := []TrendPoint{}
	for rows.Next() {
		var d time.Time
		var avg float64
		if err := rows.Scan(&d, &avg); err != nil {
			return nil, fmt.Errorf("scan volume trend: %w", err)
		}
		points = append(points, TrendPoint{Label: NewDate(d).String(), Value: avg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("volume trend: %w", err)
	}
	return points, nil
}

const studyFrom = `FROM studies s JOIN patients p ON p.id = s.patient_id`

func studyConds(f StudyFilter) *conds {
	c := &conds{}
	if f.Status != "" {
		c.add("s.status = $%d", f.Status)
	}
	if f.Risk != "" {
		c.add("s.overall_risk = $%d", f.Risk)
	}
	c.search(f.Search, "s.study_uid", "p.patient_uid", "p.anon_label")
	return c
}

func (r *QueryRepoPG) ListStudies(ctx context.Context, f StudyFilter, limit, offset int) ([]StudyRow, error) {
	c := studyConds(f)
	where := c.clause()
	q := fmt.Sprintf(`SELECT s.id, s.study_uid, p.patient_uid, p.anon_label, s.study_date,
		s.status, s.overall_risk, s.nodule_count
		%s %s
		ORDER BY s.study_date DESC, s.created_at ASC, s.id ASC%s`,
		studyFrom, where, c.page(limit, offset))

	rows, err := r.conn(ctx).Query(ctx, q, c.args...)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	items := []StudyRow{}
	for rows.Next() {
		var s StudyRow
		var d time.Time
		if err := rows.Scan(&s.ID, &s.StudyUID, &s.PatientUID, &s.AnonLabel, &d,
			&s.Status, &s.OverallRisk, &s.NoduleCount); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		s.StudyDate = NewDate(d)
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	return items, nil
}

func (r *QueryRepoPG) CountStudies(ctx context.Context, f StudyFilter) (int, error) {
	c := studyConds(f)
	var total int
	q := fmt.Sprintf("SELECT COUNT(*) %s %s", studyFrom, c.clause())
	if err := r.conn(ctx).QueryRow(ctx, q, c.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count studies: %w", err)
	}
	return total, nil
}

func (r *QueryRepoPG) StudyDetail(ctx context.Context, id string) (*StudyDetail, error) {
	studyID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrStudyNotFound
	}

	conn := r.conn(ctx)
	d := &StudyDetail{}
	var studyDate time.Time
	err = conn.QueryRow(ctx, `SELECT s.id, s.study_uid, s.study_date, s.status, s.overall_risk,
		s.nodule_count, p.patient_uid, p.anon_label
		`+studyFrom+` WHERE s.id = $1`, studyID,
	).Scan(&d.ID, &d.StudyUID, &studyDate, &d.Status, &d.OverallRisk,
		&d.NoduleCount, &d.PatientUID, &d.AnonLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get study %s: %w", studyID, err)
	}
	d.StudyDate = NewDate(studyDate)

	err = conn.QueryRow(ctx, `SELECT i.file_path
		FROM images i
		JOIN series se ON se.id = i.series_id
		WHERE se.study_id = $1
		ORDER BY se.series_uid, i.image_uid
		LIMIT 1`, studyID).Scan(&d.ImagePath)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("first image for study %s: %w", studyID, err)
	}

	var sum Summary
	err = conn.QueryRow(ctx, `SELECT id, volume_total_mm3, mean_diameter_mm, vdt_days,
		overall_risk, notes, lung_rads, algo_version
		FROM qct_summaries WHERE study_id = $1`, studyID,
	).Scan(&sum.ID, &sum.VolumeTotalMM3, &sum.MeanDiameterMM, &sum.VDTDays,
		&sum.OverallRisk, &sum.Notes, &sum.LungRADS, &sum.AlgoVersion)
	switch {
	case err == nil:
		d.Summary = &sum
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("summary for study %s: %w", studyID, err)
	}

	d.Nodules, err = r.nodules(ctx, conn, studyID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *QueryRepoPG) nodules(ctx context.Context, conn db.Queryable, studyID uuid.UUID) ([]Nodule, error) {
	rows, err := conn.Query(ctx, `SELECT id, nodule_uid, location, volume_mm3, diameter_mm,
		vdt_days, risk, is_followup, texture
		FROM qct_nodules WHERE study_id = $1
		ORDER BY nodule_uid`, studyID)
	if err != nil {
		return nil, fmt.Errorf("nodules for study %s: %w", studyID, err)
	}
	defer rows.Close()

	nodules := []Nodule{}
	for rows.Next() {
		var n Nodule
		if err := rows.Scan(&n.ID, &n.NoduleUID, &n.Location, &n.VolumeMM3, &n.DiameterMM,
			&n.VDTDays, &n.Risk, &n.IsFollowup, &n.Texture); err != nil {
			return nil, fmt.Errorf("scan nodule: %w", err)
		}
		nodules = append(nodules, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nodules for study %s: %w", studyID, err)
	}
	return nodules, nil
}

const followupFrom = `FROM qct_followups f
	JOIN qct_nodules n ON n.id = f.nodule_id
	JOIN studies ps ON ps.id = f.prior_study_id
	JOIN studies cs ON cs.id = f.current_study_id
	JOIN patients p ON p.id = cs.patient_id
	JOIN sites si ON si.id = cs.site_id`

func followupConds(f SearchFilter) *conds {
	c := &conds{}
	c.search(f.Search, "p.patient_uid", "p.anon_label", "n.nodule_uid", "cs.study_uid", "ps.study_uid")
	return c
}

func (r *QueryRepoPG) FollowupTimeline(ctx context.Context, f SearchFilter, limit, offset int) ([]FollowupRow, error) {
	c := followupConds(f)
	where := c.clause()
	q := fmt.Sprintf(`SELECT f.id, n.nodule_uid, p.patient_uid, p.anon_label, si.name,
		ps.study_uid, ps.study_date, cs.study_uid, cs.study_date, cs.id,
		ROUND(f.growth_percent::numeric, 1)::float8, f.status, cs.overall_risk
		%s %s
		ORDER BY cs.study_date DESC, f.created_at ASC, f.id ASC%s`,
		followupFrom, where, c.page(limit, offset))

	rows, err := r.conn(ctx).Query(ctx, q, c.args...)
	if err != nil {
		return nil, fmt.Errorf("followup timeline: %w", err)
	}
	defer rows.Close()

	items := []FollowupRow{}
	for rows.Next() {
		var fr FollowupRow
		var prior, current time.Time
		if err := rows.Scan(&fr.ID, &fr.NoduleUID, &fr.PatientUID, &fr.AnonLabel, &fr.SiteName,
			&fr.PriorStudyUID, &prior, &fr.CurrentStudyUID, &current, &fr.CurrentStudyID,
			&fr.GrowthPercent, &fr.Status, &fr.Risk); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		fr.PriorDate = NewDate(prior)
		fr.CurrentDate = NewDate(current)
		items = append(items, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("followup timeline: %w", err)
	}
	return items, nil
}

func (r *QueryRepoPG) CountFollowups(ctx context.Context, f SearchFilter) (int, error) {
	c := followupConds(f)
	var total int
	q := fmt.Sprintf("SELECT COUNT(*) %s %s", followupFrom, c.clause())
	if err := r.conn(ctx).QueryRow(ctx, q, c.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count followups: %w", err)
	}
	return total, nil
}

const ingestionFrom = `FROM ingestion_logs l
	JOIN studies s ON s.id = l.study_id
	JOIN patients p ON p.id = s.patient_id
	JOIN sites si ON si.id = s.site_id`

func ingestionConds(f SearchFilter) *conds {
	c := &conds{}
	c.search(f.Search, "p.patient_uid", "p.anon_label", "s.study_uid", "l.message")
	return c
}

func (r *QueryRepoPG) IngestionLogs(ctx context.Context, f SearchFilter, limit, offset int) ([]IngestionRow, error) {
	c := ingestionConds(f)
	where := c.clause()
	q := fmt.Sprintf(`SELECT l.id, l.status, l.message, l.started_at, l.completed_at,
		s.study_uid, s.id, p.patient_uid, p.anon_label, si.name
		%s %s
		ORDER BY l.started_at DESC, l.id ASC%s`,
		ingestionFrom, where, c.page(limit, offset))

	rows, err := r.conn(ctx).Query(ctx, q, c.args...)
	if err != nil {
		return nil, fmt.Errorf("ingestion logs: %w", err)
	}
	defer rows.Close()

	items := []IngestionRow{}
	for rows.Next() {
		var l IngestionRow
		if err := rows.Scan(&l.ID, &l.Status, &l.Message, &l.StartedAt, &l.CompletedAt,
			&l.StudyUID, &l.StudyID, &l.PatientUID, &l.AnonLabel, &l.SiteName); err != nil {
			return nil, fmt.Errorf("scan ingestion log: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ingestion logs: %w", err)
	}
	return items, nil
}

func (r *QueryRepoPG) CountIngestionLogs(ctx context.Context, f SearchFilter) (int, error) {
	c := ingestionConds(f)
	var total int
	q := fmt.Sprintf("SELECT COUNT(*) %s %s", ingestionFrom, c.clause())
	if err := r.conn(ctx).QueryRow(ctx, q, c.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count ingestion logs: %w", err)
	}
	return total, nil
}

// RecordAccess inserts one audit row. It commits immediately; there is no
// update or delete path for audit rows.
func (r *QueryRepoPG) RecordAccess(ctx context.Context, a *AccessAudit) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AccessedAt.IsZero() {
		a.AccessedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO access_audits
		(id, user_id, study_id, action, ip_address, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.StudyID, a.Action, a.IPAddress, a.AccessedAt)
	if err != nil {
		return fmt.Errorf("record access to study %s: %w", a.StudyID, err)
	}
	return nil
}
