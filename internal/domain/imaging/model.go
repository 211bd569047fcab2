package imaging

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Risk levels, ordered low < medium < high.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskOrder is the fixed presentation order of risk levels.
var RiskOrder = []string{RiskLow, RiskMedium, RiskHigh}

// Study statuses.
const (
	StatusReady      = "ready"
	StatusProcessing = "processing"
	StatusReview     = "review"
)

// ActionView is the audit action recorded for a study detail view.
const ActionView = "view"

// RiskRank returns the position of risk in RiskOrder, or -1 when unknown.
func RiskRank(risk string) int {
	for i, r := range RiskOrder {
		if r == risk {
			return i
		}
	}
	return -1
}

// Date is a calendar date serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{Time: t}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

type KPIs struct {
	TotalPatients int `json:"total_patients"`
	TotalStudies  int `json:"total_studies"`
	TotalNodules  int `json:"total_nodules"`
	HighRisk      int `json:"high_risk"`
}

// RiskCount is one bar of the risk breakdown.
type RiskCount struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// TrendPoint is the mean summary volume for one study date.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Overview bundles the dashboard landing page data.
type Overview struct {
	KPIs          KPIs         `json:"kpis"`
	RiskBreakdown []RiskCount  `json:"risk_breakdown"`
	VolumeTrend   []TrendPoint `json:"volume_trend"`
}

// StudyFilter narrows the study list. Empty fields do not filter; set
// fields combine with AND.
type StudyFilter struct {
	Status string
	Risk   string
	Search string
}

// Params returns the filter as query parameters for pagination links.
func (f StudyFilter) Params() map[string]string {
	return map[string]string{"status": f.Status, "risk": f.Risk, "q": f.Search}
}

// SearchFilter narrows the followup and ingestion listings.
type SearchFilter struct {
	Search string
}

func (f SearchFilter) Params() map[string]string {
	return map[string]string{"q": f.Search}
}

type StudyRow struct {
	ID          uuid.UUID `json:"id"`
	StudyUID    string    `json:"study_uid"`
	PatientUID  string    `json:"patient_uid"`
	AnonLabel   string    `json:"-"`
	StudyDate   Date      `json:"study_date"`
	Status      string    `json:"status"`
	OverallRisk string    `json:"overall_risk"`
	NoduleCount int       `json:"nodule_count"`
}

type Summary struct {
	ID             uuid.UUID `json:"id"`
	VolumeTotalMM3 float64   `json:"volume_total_mm3"`
	MeanDiameterMM float64   `json:"mean_diameter_mm"`
	VDTDays        int       `json:"vdt_days"`
	OverallRisk    string    `json:"overall_risk"`
	Notes          *string   `json:"notes"`
	LungRADS       *string   `json:"lung_rads"`
	AlgoVersion    *string   `json:"algo_version"`
}

type Nodule struct {
	ID         uuid.UUID `json:"id"`
	NoduleUID  string    `json:"nodule_uid"`
	Location   string    `json:"location"`
	VolumeMM3  float64   `json:"volume_mm3"`
	DiameterMM float64   `json:"diameter_mm"`
	VDTDays    int       `json:"vdt_days"`
	Risk       string    `json:"risk"`
	IsFollowup bool      `json:"is_followup"`
	Texture    *string   `json:"texture"`
}

type StudyDetail struct {
	ID          uuid.UUID `json:"id"`
	StudyUID    string    `json:"study_uid"`
	StudyDate   Date      `json:"study_date"`
	Status      string    `json:"status"`
	OverallRisk string    `json:"overall_risk"`
	NoduleCount int       `json:"nodule_count"`
	PatientUID  string    `json:"patient_uid"`
	AnonLabel   string    `json:"anon_label"`
	// ImagePath is the first image of the study's series, "" when none.
	ImagePath    string   `json:"image_path"`
	Summary      *Summary `json:"summary"`
	Nodules      []Nodule `json:"nodules"`
	DataWarnings []string `json:"data_warnings"`
}

// MaxNoduleRisk returns the highest risk among the nodules, or "" when there
// are none or none has a known level.
func (d *StudyDetail) MaxNoduleRisk() string {
	best := -1
	for _, n := range d.Nodules {
		if r := RiskRank(n.Risk); r > best {
			best = r
		}
	}
	if best < 0 {
		return ""
	}
	return RiskOrder[best]
}

// CheckConsistency compares the cached study fields with the rows they are
// derived from and describes each disagreement. Nothing is repaired.
func (d *StudyDetail) CheckConsistency() []string {
	warnings := []string{}

	if d.NoduleCount != len(d.Nodules) {
		warnings = append(warnings, fmt.Sprintf(
			"nodule_count is %d but the study has %d nodule rows", d.NoduleCount, len(d.Nodules)))
	}

	maxRisk := d.MaxNoduleRisk()
	if maxRisk == "" {
		return warnings
	}
	if d.Summary != nil && d.Summary.OverallRisk != maxRisk {
		warnings = append(warnings, fmt.Sprintf(
			"summary overall_risk is %q but the highest nodule risk is %q", d.Summary.OverallRisk, maxRisk))
	}
	if d.OverallRisk != maxRisk {
		warnings = append(warnings, fmt.Sprintf(
			"study overall_risk is %q but the highest nodule risk is %q", d.OverallRisk, maxRisk))
	}
	return warnings
}

type FollowupRow struct {
	ID              uuid.UUID `json:"id"`
	NoduleUID       string    `json:"nodule_uid"`
	PatientUID      string    `json:"patient_uid"`
	AnonLabel       string    `json:"anon_label"`
	SiteName        string    `json:"site_name"`
	PriorStudyUID   string    `json:"prior_study_uid"`
	PriorDate       Date      `json:"prior_date"`
	CurrentStudyUID string    `json:"current_study_uid"`
	CurrentDate     Date      `json:"current_date"`
	CurrentStudyID  uuid.UUID `json:"current_study_id"`
	// GrowthPercent is rounded to one decimal; negative means shrinkage.
	GrowthPercent float64 `json:"growth_percent"`
	Status        string  `json:"status"`
	Risk          string  `json:"risk"`
}

type IngestionRow struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	StudyUID    string     `json:"study_uid"`
	StudyID     uuid.UUID  `json:"study_id"`
	PatientUID  string     `json:"patient_uid"`
	AnonLabel   string     `json:"anon_label"`
	SiteName    string     `json:"site_name"`
}

// AccessAudit is an append-only record of a user viewing a study.
type AccessAudit struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	StudyID    uuid.UUID `json:"study_id"`
	Action     string    `json:"action"`
	IPAddress  string    `json:"ip_address"`
	AccessedAt time.Time `json:"accessed_at"`
}

// normalizeSearch trims the term; an all-blank term means no search.
func normalizeSearch(s string) string {
	return strings.TrimSpace(s)
}
