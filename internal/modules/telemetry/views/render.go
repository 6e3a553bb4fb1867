package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"time"
)

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.ParseFS(sub, "*.html")
	return err
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type SensorRow struct {
	ID          string
	Temperature float32
	Tracked     bool
}

type SnapshotView struct {
	CapturedAt time.Time
	Uptime     float64
	MemAlloc   uint32
	MemFree    uint32
	RSSI       int
	Sensors    []SensorRow
}

type GrowthView struct {
	Sensor  string
	Samples int
	Value   float64
	Ready   bool
}

// DashboardData is the view model for the dashboard page. Nil Snapshot means
// no frame yet; nil Growth means the estimate is disabled.
type DashboardData struct {
	Snapshot       *SnapshotView
	Growth         *GrowthView
	RefreshSeconds int
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}
