package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const layoutFile = "layout.html"

// Renderer executes page templates parsed once at startup. Each page is its
// own template set so that every page can define "content".
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses layout.html together with every other *.html file of
// fsys. A page is addressed by its file name without extension.
func NewRenderer(fsys fs.FS, imagesPrefix string) (*Renderer, error) {
	layout, err := template.New(layoutFile).Funcs(Funcs(imagesPrefix)).ParseFS(fsys, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		set, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", f, err)
		}
		if _, err := set.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.pages[strings.TrimSuffix(f, path.Ext(f))] = set
	}
	return r, nil
}

// Has reports whether a page named name was parsed.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render implements echo.Renderer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	set, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return set.ExecuteTemplate(w, "layout", data)
}

var palette = map[string]string{
	"low":    "#5cb85c",
	"medium": "#f0ad4e",
	"high":   "#d9534f",
}

const unknownRiskColor = "#94a3b8"

// Funcs returns the helpers available to every template.
func Funcs(imagesPrefix string) template.FuncMap {
	return template.FuncMap{
		"riskColor": RiskColor,
		"imageURL":  func(p string) string { return ImageURL(imagesPrefix, p) },
		"pageURL":   PageURL,
		"decimal": func(f float64, prec int) string {
			return strconv.FormatFloat(f, 'f', prec, 64)
		},
		"timestamp": Timestamp,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
}

// RiskColor returns the palette colour of a risk level.
func RiskColor(risk string) string {
	if c, ok := palette[risk]; ok {
		return c
	}
	return unknownRiskColor
}

// Palette returns a copy of the risk palette.
func Palette() map[string]string {
	out := make(map[string]string, len(palette))
	for k, v := range palette {
		out[k] = v
	}
	return out
}

// ImageURL maps a stored image file path onto the images route. Paths are
// stored relative to the images directory, optionally with an "images/"
// prefix. Anything escaping the directory yields "".
func ImageURL(prefix, filePath string) string {
	if filePath == "" {
		return ""
	}
	p := path.Clean("/" + strings.ReplaceAll(filePath, "\\", "/"))
	if p == "/images" || strings.HasPrefix(p, "/images/") {
		p = strings.TrimPrefix(p, "/images")
	}
	if p == "" || p == "/" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/") + p
}

// Timestamp formats a time.Time or *time.Time in UTC to the minute. Nil and
// zero times format as "".
func Timestamp(v interface{}) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return ""
		}
		t = *x
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// PageURL builds a relative link to page n of a listing.
func PageURL(baseQuery string, n int) string {
	q := "page=" + strconv.Itoa(n)
	if baseQuery != "" {
		q = baseQuery + "&" + q
	}
	return "?" + q
}
