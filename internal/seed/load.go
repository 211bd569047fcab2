package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotEmpty is returned when the target database already holds studies
// and a reset was not requested.
var ErrNotEmpty = errors.New("database already contains studies")

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// resetOrder deletes children before parents.
var resetOrder = []string{
	"access_audits", "ingestion_logs", "qct_followups", "qct_nodules", "qct_summaries",
	"images", "series", "studies", "patients", "sites", "clients",
}

// Counts reports how many rows Load wrote per table.
type Counts map[string]int64

// Load writes ds in one transaction. With reset, existing demo rows are
// removed first; without it, a database that already has studies is left
// untouched and ErrNotEmpty is returned. The seed user is matched by
// username so an account created by an earlier login is reused.
func Load(ctx context.Context, pool Beginner, ds *Dataset, reset bool) (Counts, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if reset {
		for _, table := range resetOrder {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return nil, fmt.Errorf("reset %s: %w", table, err)
			}
		}
	} else {
		var populated bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM studies)`).Scan(&populated); err != nil {
			return nil, fmt.Errorf("check existing studies: %w", err)
		}
		if populated {
			return nil, ErrNotEmpty
		}
	}

	if err := ensureUsers(ctx, tx, ds); err != nil {
		return nil, err
	}

	counts := Counts{}
	for _, t := range tables(ds) {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows))
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", t.name, err)
		}
		counts[t.name] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit seed transaction: %w", err)
	}
	return counts, nil
}

// ensureUsers inserts the seed users or adopts the ids of existing rows with
// the same username, rewriting audit references to match.
func ensureUsers(ctx context.Context, tx pgx.Tx, ds *Dataset) error {
	for i, u := range ds.Users {
		id := u.ID
		err := tx.QueryRow(ctx, `INSERT INTO users (id, username, display_name, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
			RETURNING id`, u.ID, u.Username, u.DisplayName, u.Role).Scan(&id)
		if err != nil {
			return fmt.Errorf("ensure seed user %s: %w", u.Username, err)
		}
		if id == u.ID {
			continue
		}
		for j := range ds.Audits {
			if ds.Audits[j].UserID == u.ID {
				ds.Audits[j].UserID = id
			}
		}
		ds.Users[i].ID = id
	}
	return nil
}

type table struct {
	name    string
	columns []string
	rows    [][]any
}

// tables lists the dataset in foreign key order.
func tables(ds *Dataset) []table {
	out := []table{
		{name: "clients", columns: []string{"id", "name"}},
		{name: "sites", columns: []string{"id", "client_id", "name", "location"}},
		{name: "patients", columns: []string{"id", "site_id", "patient_uid", "anon_label", "birth_year", "sex"}},
		{name: "studies", columns: []string{"id", "patient_id", "site_id", "study_uid", "study_date", "status", "overall_risk", "nodule_count"}},
		{name: "series", columns: []string{"id", "study_id", "series_uid", "description"}},
		{name: "images", columns: []string{"id", "series_id", "image_uid", "file_path"}},
		{name: "qct_summaries", columns: []string{"id", "study_id", "volume_total_mm3", "mean_diameter_mm", "vdt_days", "overall_risk", "notes", "lung_rads", "algo_version"}},
		{name: "qct_nodules", columns: []string{"id", "study_id", "nodule_uid", "location", "volume_mm3", "diameter_mm", "vdt_days", "risk", "is_followup", "texture"}},
		{name: "qct_followups", columns: []string{"id", "nodule_id", "prior_study_id", "current_study_id", "growth_percent", "status"}},
		{name: "ingestion_logs", columns: []string{"id", "study_id", "status", "message", "started_at", "completed_at"}},
		{name: "access_audits", columns: []string{"id", "user_id", "study_id", "action", "ip_address", "accessed_at"}},
	}

	for _, c := range ds.Clients {
		out[0].rows = append(out[0].rows, []any{c.ID, c.Name})
	}
	for _, s := range ds.Sites {
		out[1].rows = append(out[1].rows, []any{s.ID, s.ClientID, s.Name, s.Location})
	}
	for _, p := range ds.Patients {
		out[2].rows = append(out[2].rows, []any{p.ID, p.SiteID, p.PatientUID, p.AnonLabel, p.BirthYear, p.Sex})
	}
	for _, s := range ds.Studies {
		out[3].rows = append(out[3].rows, []any{s.ID, s.PatientID, s.SiteID, s.StudyUID, s.StudyDate, s.Status, s.OverallRisk, s.NoduleCount})
	}
	for _, s := range ds.Series {
		out[4].rows = append(out[4].rows, []any{s.ID, s.StudyID, s.SeriesUID, s.Description})
	}
	for _, im := range ds.Images {
		out[5].rows = append(out[5].rows, []any{im.ID, im.SeriesID, im.ImageUID, im.FilePath})
	}
	for _, s := range ds.Summaries {
		out[6].rows = append(out[6].rows, []any{s.ID, s.StudyID, s.VolumeTotalMM3, s.MeanDiameterMM, s.VDTDays, s.OverallRisk, s.Notes, s.LungRADS, s.AlgoVersion})
	}
	for _, n := range ds.Nodules {
		out[7].rows = append(out[7].rows, []any{n.ID, n.StudyID, n.NoduleUID, n.Location, n.VolumeMM3, n.DiameterMM, n.VDTDays, n.Risk, n.IsFollowup, n.Texture})
	}
	for _, f := range ds.Followups {
		out[8].rows = append(out[8].rows, []any{f.ID, f.NoduleID, f.PriorStudyID, f.CurrentStudyID, f.GrowthPercent, f.Status})
	}
	for _, l := range ds.Ingestion {
		out[9].rows = append(out[9].rows, []any{l.ID, l.StudyID, l.Status, l.Message, l.StartedAt, l.CompletedAt})
	}
	for _, a := range ds.Audits {
		out[10].rows = append(out[10].rows, []any{a.ID, a.UserID, a.StudyID, a.Action, a.IPAddress, a.AccessedAt})
	}
	return out
}
