// Package seed generates and loads the demo dataset used by mock
// deployments. Generation is deterministic for a given seed and date.
package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qct/dashboard/internal/domain/imaging"
)

const (
	sitesPerClient   = 2
	patientsPerSite  = 5
	auditedStudies   = 5
	seedAuditAction  = "seed_view"
	seedAuditAddress = "127.0.0.1"
)

var (
	statuses  = []string{imaging.StatusReady, imaging.StatusProcessing, imaging.StatusReview}
	locations = []string{"RUL", "RML", "RLL", "LUL", "LLL"}
	textures  = []string{"Solid", "Part-Solid", "Ground Glass"}
	siteSpecs = [sitesPerClient][2]string{{"Metro Imaging", "Chicago"}, {"Harbor Diagnostics", "Seattle"}}
)

// Options controls generation.
type Options struct {
	Seed int64
	// Today anchors study dates; zero means time.Now().
	Today time.Time
	// ImagePaths are the stored file paths images are drawn from.
	ImagePaths []string
	User       User
}

type Client struct {
	ID   uuid.UUID
	Name string
}

type Site struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Name     string
	Location string
}

type Patient struct {
	ID         uuid.UUID
	SiteID     uuid.UUID
	PatientUID string
	AnonLabel  string
	BirthYear  int
	Sex        string
}

type Study struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	SiteID      uuid.UUID
	StudyUID    string
	StudyDate   time.Time
	Status      string
	OverallRisk string
	NoduleCount int
}

type Series struct {
	ID          uuid.UUID
	StudyID     uuid.UUID
	SeriesUID   string
	Description string
}

type Image struct {
	ID       uuid.UUID
	SeriesID uuid.UUID
	ImageUID string
	FilePath string
}

type Summary struct {
	ID             uuid.UUID
	StudyID        uuid.UUID
	VolumeTotalMM3 float64
	MeanDiameterMM float64
	VDTDays        int
	OverallRisk    string
	Notes          string
	LungRADS       string
	AlgoVersion    string
}

type Nodule struct {
	ID         uuid.UUID
	StudyID    uuid.UUID
	NoduleUID  string
	Location   string
	VolumeMM3  float64
	DiameterMM float64
	VDTDays    int
	Risk       string
	IsFollowup bool
	Texture    string
}

type Followup struct {
	ID             uuid.UUID
	NoduleID       uuid.UUID
	PriorStudyID   uuid.UUID
	CurrentStudyID uuid.UUID
	GrowthPercent  float64
	Status         string
}

type IngestionLog struct {
	ID          uuid.UUID
	StudyID     uuid.UUID
	Status      string
	Message     string
	StartedAt   time.Time
	CompletedAt time.Time
}

type User struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	Role        string
}

type Audit struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	StudyID    uuid.UUID
	Action     string
	IPAddress  string
	AccessedAt time.Time
}

// Dataset is one complete, referentially consistent demo dataset.
type Dataset struct {
	Clients   []Client
	Sites     []Site
	Patients  []Patient
	Studies   []Study
	Series    []Series
	Images    []Image
	Summaries []Summary
	Nodules   []Nodule
	Followups []Followup
	Ingestion []IngestionLog
	Users     []User
	Audits    []Audit
}

// generator draws every random value, ids included, from one source so the
// same options always produce the same dataset.
type generator struct {
	rnd   *rand.Rand
	today time.Time
	opts  Options
}

func (g *generator) id() uuid.UUID {
	var b [16]byte
	g.rnd.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

func (g *generator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

func (g *generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}

func pick[T any](g *generator, xs []T) T {
	return xs[g.rnd.Intn(len(xs))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DiameterFromVolume is the diameter of a sphere with the given volume.
func DiameterFromVolume(volumeMM3 float64) float64 {
	return 2 * math.Cbrt(3*volumeMM3/(4*math.Pi))
}

// RiskFromMetrics grades a nodule by volume and volume doubling time.
func RiskFromMetrics(volumeMM3 float64, vdtDays int) string {
	switch {
	case volumeMM3 > 1500 || vdtDays < 100:
		return imaging.RiskHigh
	case volumeMM3 > 500 || vdtDays < 200:
		return imaging.RiskMedium
	default:
		return imaging.RiskLow
	}
}

// Generate builds the demo dataset.
func Generate(opts Options) (*Dataset, error) {
	if len(opts.ImagePaths) == 0 {
		return nil, fmt.Errorf("seed: at least one image path is required")
	}
	if opts.User.Username == "" {
		return nil, fmt.Errorf("seed: a username is required")
	}
	today := opts.Today
	if today.IsZero() {
		today = time.Now()
	}
	g := &generator{
		rnd:   rand.New(rand.NewSource(opts.Seed)),
		today: time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		opts:  opts,
	}
	return g.dataset(), nil
}

func (g *generator) dataset() *Dataset {
	ds := &Dataset{}

	user := g.opts.User
	user.ID = g.id()
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	ds.Users = append(ds.Users, user)

	client := Client{ID: g.id(), Name: "QCT Demo Client"}
	ds.Clients = append(ds.Clients, client)

	for _, s := range siteSpecs {
		site := Site{ID: g.id(), ClientID: client.ID, Name: s[0], Location: s[1]}
		ds.Sites = append(ds.Sites, site)

		code := strings.ToUpper(site.Location[:2])
		for i := 1; i <= patientsPerSite; i++ {
			p := Patient{
				ID:         g.id(),
				SiteID:     site.ID,
				PatientUID: fmt.Sprintf("P-%s-%03d", code, i),
				AnonLabel:  fmt.Sprintf("Anon-%s-%03d", code, i),
				BirthYear:  g.between(1950, 1995),
				Sex:        pick(g, []string{"F", "M"}),
			}
			ds.Patients = append(ds.Patients, p)
			g.patientStudies(ds, p)
		}
	}

	for i := 0; i < auditedStudies && i < len(ds.Studies); i++ {
		ds.Audits = append(ds.Audits, Audit{
			ID:         g.id(),
			UserID:     user.ID,
			StudyID:    ds.Studies[i].ID,
			Action:     seedAuditAction,
			IPAddress:  seedAuditAddress,
			AccessedAt: g.today,
		})
	}
	return ds
}

// patientStudies adds two or three studies for p, in date order, and a
// followup between each consecutive pair.
func (g *generator) patientStudies(ds *Dataset, p Patient) {
	count := g.between(2, 3)
	date := g.today.AddDate(0, 0, -g.between(40, 220))

	var priorID uuid.UUID
	for i := 0; i < count; i++ {
		if i > 0 {
			date = date.AddDate(0, 0, g.between(60, 120))
		}
		st := Study{
			ID:        g.id(),
			PatientID: p.ID,
			SiteID:    p.SiteID,
			StudyUID:  fmt.Sprintf("ST-%s-%d", p.PatientUID, i+1),
			StudyDate: date,
			Status:    pick(g, statuses),
		}

		series := Series{ID: g.id(), StudyID: st.ID, SeriesUID: "SR-" + st.StudyUID, Description: "Chest CT"}
		ds.Series = append(ds.Series, series)
		ds.Images = append(ds.Images, Image{
			ID:       g.id(),
			SeriesID: series.ID,
			ImageUID: g.id().String(),
			FilePath: pick(g, g.opts.ImagePaths),
		})

		nodules := g.nodules(st, i > 0)
		ds.Nodules = append(ds.Nodules, nodules...)

		sum := g.summary(st, nodules)
		ds.Summaries = append(ds.Summaries, sum)

		st.OverallRisk = sum.OverallRisk
		st.NoduleCount = len(nodules)
		if st.OverallRisk == imaging.RiskHigh {
			st.Status = imaging.StatusReview
		}

		logStatus := "completed"
		if st.Status == imaging.StatusProcessing {
			logStatus = "processing"
		}
		ds.Ingestion = append(ds.Ingestion, IngestionLog{
			ID:          g.id(),
			StudyID:     st.ID,
			Status:      logStatus,
			Message:     "Simulated ingestion event.",
			StartedAt:   g.today.Add(-time.Duration(g.between(1, 48)) * time.Hour),
			CompletedAt: g.today,
		})

		ds.Studies = append(ds.Studies, st)

		if priorID != uuid.Nil {
			followupStatus := "monitor"
			if st.OverallRisk == imaging.RiskLow {
				followupStatus = "stable"
			}
			ds.Followups = append(ds.Followups, Followup{
				ID:             g.id(),
				NoduleID:       nodules[0].ID,
				PriorStudyID:   priorID,
				CurrentStudyID: st.ID,
				GrowthPercent:  g.uniform(-5, 35),
				Status:         followupStatus,
			})
		}
		priorID = st.ID
	}
}

func (g *generator) nodules(st Study, followup bool) []Nodule {
	n := g.between(1, 4)
	out := make([]Nodule, 0, n)
	for i := 0; i < n; i++ {
		volume := g.uniform(50, 3000)
		diameter := DiameterFromVolume(volume) + g.uniform(-0.8, 0.8)
		vdt := g.between(30, 400)
		out = append(out, Nodule{
			ID:         g.id(),
			StudyID:    st.ID,
			NoduleUID:  fmt.Sprintf("ND-%s-%d", st.StudyUID, i+1),
			Location:   pick(g, locations),
			VolumeMM3:  round2(volume),
			DiameterMM: round2(diameter),
			VDTDays:    vdt,
			Risk:       RiskFromMetrics(volume, vdt),
			IsFollowup: followup,
			Texture:    pick(g, textures),
		})
	}
	return out
}

func (g *generator) summary(st Study, nodules []Nodule) Summary {
	var volume, diameter float64
	var vdt int
	risk := imaging.RiskLow
	for _, n := range nodules {
		volume += n.VolumeMM3
		diameter += n.DiameterMM
		vdt += n.VDTDays
		if imaging.RiskRank(n.Risk) > imaging.RiskRank(risk) {
			risk = n.Risk
		}
	}

	lungRADS := "2"
	switch risk {
	case imaging.RiskHigh:
		lungRADS = pick(g, []string{"4A", "4B"})
	case imaging.RiskMedium:
		lungRADS = "3"
	}

	return Summary{
		ID:             g.id(),
		StudyID:        st.ID,
		VolumeTotalMM3: round2(volume),
		MeanDiameterMM: round2(diameter / float64(len(nodules))),
		VDTDays:        vdt / len(nodules),
		OverallRisk:    risk,
		Notes:          "Simulated AI summary for demo use only.",
		LungRADS:       lungRADS,
		AlgoVersion:    fmt.Sprintf("qCT v%d.%d", g.between(1, 2), g.between(0, 5)),
	}
}
