// Package dashboard renders the Grafana dashboard for the exported tables.
package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// DatasourceEnv names the variable holding the Grafana datasource UID.
const DatasourceEnv = "GREPTIMEDB_DATASOURCE_UID"

// ErrInvalidDashboard is returned when a rendered template is not JSON.
var ErrInvalidDashboard = errors.New("rendered dashboard is not valid JSON")

// Options parameterises the rendered dashboard.
type Options struct {
	Title string
	// Table is the telemetry table; alert and state tables are derived from it.
	Table string
	// DatasourceUID falls back to $GREPTIMEDB_DATASOURCE_UID when empty.
	DatasourceUID string
	Refresh       time.Duration
	Bucket        time.Duration
	OnlineWindow  time.Duration
}

type data struct {
	Title         string
	Table         string
	DatasourceUID string
	Refresh       string
	Bucket        string
	OnlineWindow  string
}

// interval formats d the way SQL intervals expect ("30 seconds").
func interval(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}

func (o Options) resolve() (data, error) {
	if o.Table == "" {
		o.Table = "sentinel_telemetry"
	}
	if o.Title == "" {
		o.Title = "Sentinel fleet"
	}
	if o.DatasourceUID == "" {
		o.DatasourceUID = os.Getenv(DatasourceEnv)
	}
	if o.DatasourceUID == "" {
		return data{}, fmt.Errorf("environment variable %s not set", DatasourceEnv)
	}
	if o.Refresh <= 0 {
		o.Refresh = 10 * time.Second
	}
	if o.Bucket <= 0 {
		o.Bucket = time.Minute
	}
	if o.OnlineWindow <= 0 {
		o.OnlineWindow = 12 * time.Second
	}
	return data{
		Title:         o.Title,
		Table:         o.Table,
		DatasourceUID: o.DatasourceUID,
		Refresh:       o.Refresh.String(),
		Bucket:        interval(o.Bucket),
		OnlineWindow:  interval(o.OnlineWindow),
	}, nil
}

// Render writes every dashboard template to outDir and returns the paths
// written.
func Render(outDir string, opts Options) ([]string, error) {
	d, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	names, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, e := range names {
		t, err := template.ParseFS(templates, "templates/"+e.Name())
		if err != nil {
			return written, err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, d); err != nil {
			return written, err
		}
		if !json.Valid(buf.Bytes()) {
			return written, fmt.Errorf("%s: %w", e.Name(), ErrInvalidDashboard)
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".tmpl"))
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
