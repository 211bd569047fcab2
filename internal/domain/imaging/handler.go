package imaging

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qct/dashboard/internal/platform/auth"
	"github.com/qct/dashboard/internal/platform/web"
	"github.com/qct/dashboard/pkg/pagination"
)

const (
	HeaderTotalCount = "X-Total-Count"
	HeaderTotalPages = "X-Total-Pages"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard pages and their JSON counterparts on
// g. The auth gate is applied by the caller.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/", h.OverviewPage)
	g.GET("/api/overview", h.OverviewAPI)

	g.GET("/studies", h.StudiesPage)
	g.GET("/studies/api", h.StudiesAPI)
	g.GET("/studies/:id", h.StudyDetailPage)
	g.GET("/studies/:id/api", h.StudyDetailAPI)

	g.GET("/followups", h.FollowupsPage)
	g.GET("/followups/api", h.FollowupsAPI)

	g.GET("/ingestion", h.IngestionPage)
	g.GET("/ingestion/api", h.IngestionAPI)
}

type studiesView struct {
	*ListPage[StudyRow]
	Filter   StudyFilter
	Statuses []string
	Risks    []string
}

type searchView[T any] struct {
	*ListPage[T]
	Filter SearchFilter
}

func studyFilter(c echo.Context) StudyFilter {
	return StudyFilter{
		Status: strings.TrimSpace(c.QueryParam("status")),
		Risk:   strings.TrimSpace(c.QueryParam("risk")),
		Search: normalizeSearch(c.QueryParam("q")),
	}
}

func searchFilter(c echo.Context) SearchFilter {
	return SearchFilter{Search: normalizeSearch(c.QueryParam("q"))}
}

func setTotals(c echo.Context, p pagination.Page) {
	c.Response().Header().Set(HeaderTotalCount, strconv.Itoa(p.Total))
	c.Response().Header().Set(HeaderTotalPages, strconv.Itoa(p.TotalPages))
}

func viewer(c echo.Context) Viewer {
	return Viewer{
		UserID: auth.UserIDFromContext(c.Request().Context()),
		IP:     c.RealIP(),
	}
}

func notFound(err error) error {
	if errors.Is(err, ErrStudyNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "study not found")
	}
	return err
}

func (h *Handler) OverviewPage(c echo.Context) error {
	o, err := h.svc.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "overview", web.NewPage(c, "Overview", "overview", o))
}

func (h *Handler) OverviewAPI(c echo.Context) error {
	o, err := h.svc.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) StudiesPage(c echo.Context) error {
	f := studyFilter(c)
	page, err := h.svc.Studies(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	view := studiesView{
		ListPage: page,
		Filter:   f,
		Statuses: []string{StatusReady, StatusProcessing, StatusReview},
		Risks:    RiskOrder,
	}
	return c.Render(http.StatusOK, "studies", web.NewPage(c, "Studies", "studies", view))
}

// StudiesAPI returns a bare JSON array; pagination totals travel in the
// X-Total-Count and X-Total-Pages headers.
func (h *Handler) StudiesAPI(c echo.Context) error {
	page, err := h.svc.Studies(c.Request().Context(), studyFilter(c), pagination.FromContext(c))
	if err != nil {
		return err
	}
	setTotals(c, page.Pagination)
	return c.JSON(http.StatusOK, page.Data)
}

func (h *Handler) StudyDetailPage(c echo.Context) error {
	d, err := h.svc.ViewStudy(c.Request().Context(), c.Param("id"), viewer(c))
	if err != nil {
		return notFound(err)
	}
	return c.Render(http.StatusOK, "study_detail", web.NewPage(c, "Study "+d.StudyUID, "studies", d))
}

func (h *Handler) StudyDetailAPI(c echo.Context) error {
	d, err := h.svc.ViewStudy(c.Request().Context(), c.Param("id"), viewer(c))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) FollowupsPage(c echo.Context) error {
	f := searchFilter(c)
	page, err := h.svc.Followups(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	view := searchView[FollowupRow]{ListPage: page, Filter: f}
	return c.Render(http.StatusOK, "followups", web.NewPage(c, "Follow-ups", "followups", view))
}

func (h *Handler) FollowupsAPI(c echo.Context) error {
	page, err := h.svc.Followups(c.Request().Context(), searchFilter(c), pagination.FromContext(c))
	if err != nil {
		return err
	}
	setTotals(c, page.Pagination)
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) IngestionPage(c echo.Context) error {
	f := searchFilter(c)
	page, err := h.svc.IngestionLogs(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	view := searchView[IngestionRow]{ListPage: page, Filter: f}
	return c.Render(http.StatusOK, "ingestion", web.NewPage(c, "Ingestion", "ingestion", view))
}

func (h *Handler) IngestionAPI(c echo.Context) error {
	page, err := h.svc.IngestionLogs(c.Request().Context(), searchFilter(c), pagination.FromContext(c))
	if err != nil {
		return err
	}
	setTotals(c, page.Pagination)
	return c.JSON(http.StatusOK, page)
}
