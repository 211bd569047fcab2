package pagination

import (
	"errors"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds the requested page and page size, already clamped to valid
// ranges. The page is clamped again against the total in Resolve.
type Params struct {
	Page    int
	PerPage int
}

// FromContext extracts page/per_page from the query string. Missing or
// unparsable values fall back to defaults; out-of-range values are clamped,
// never rejected.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("per_page"))
}

// Parse clamps raw page and per_page strings. Numbers too large for an int
// saturate, so an oversized page still resolves to the last page.
func Parse(rawPage, rawPerPage string) Params {
	page, err := atoiSaturating(rawPage)
	if err != nil || page < 1 {
		page = 1
	}

	perPage, err := atoiSaturating(rawPerPage)
	if err != nil {
		perPage = DefaultPerPage
	}
	return Params{Page: page, PerPage: ClampPerPage(perPage)}
}

func atoiSaturating(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return math.MinInt, nil
		}
		return math.MaxInt, nil
	}
	return n, err
}

// ClampPerPage bounds a page size to [1, MaxPerPage].
func ClampPerPage(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxPerPage {
		return MaxPerPage
	}
	return n
}

// Page is the resolved pagination state for one listing response.
type Page struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	Offset     int    `json:"-"`
	BaseQuery  string `json:"base_query"`
}

// Resolve clamps the requested page to the last available page for total
// rows. A page past the end yields the last page; zero rows yield page 1 of 1.
func (p Params) Resolve(total int) Page {
	perPage := ClampPerPage(p.PerPage)
	if total < 0 {
		total = 0
	}
	totalPages := TotalPages(total, perPage)

	page := p.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	return Page{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Offset:     (page - 1) * perPage,
	}
}

// TotalPages returns max(1, ceil(total/perPage)).
func TotalPages(total, perPage int) int {
	if perPage < 1 {
		perPage = 1
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}

// Limit returns the row limit for the resolved page.
func (p Page) Limit() int {
	return p.PerPage
}

// HasNext returns true if a later page exists.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrevious returns true if an earlier page exists.
func (p Page) HasPrevious() bool {
	return p.Page > 1
}

// NextPage returns the following page number, capped at the last page.
func (p Page) NextPage() int {
	if p.HasNext() {
		return p.Page + 1
	}
	return p.Page
}

// PreviousPage returns the preceding page number, never below 1.
func (p Page) PreviousPage() int {
	if p.HasPrevious() {
		return p.Page - 1
	}
	return 1
}

// WithFilters sets BaseQuery to the URL-encoded per_page plus every non-empty
// filter, so page links can append "&page=N".
func (p Page) WithFilters(filters map[string]string) Page {
	p.BaseQuery = BaseQuery(p.PerPage, filters)
	return p
}

// BaseQuery encodes per_page and the non-empty filters in a stable order.
func BaseQuery(perPage int, filters map[string]string) string {
	v := url.Values{}
	v.Set("per_page", strconv.Itoa(perPage))

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if filters[k] != "" {
			v.Set(k, filters[k])
		}
	}
	return v.Encode()
}
