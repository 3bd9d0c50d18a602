package report

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/monitoring-qa/promtest/framework"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// templateFuncs returns the function map shared by the HTML templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "N/A"
			}
			return t.Format("2006-01-02 15:04:05 MST")
		},
		"upper":       strings.ToUpper,
		"statusClass": statusClass,
	}
}

// statusClass maps a status to its CSS class.
func statusClass(status string) string {
	switch status {
	case "passed":
		return "status-passed"
	case "failed":
		return "status-failed"
	case "skipped":
		return "status-skipped"
	default:
		return "status-error"
	}
}

func renderHTML(suite *framework.SuiteResult) ([]byte, error) {
	tmpl, err := template.New("report.html.tmpl").
		Funcs(templateFuncs()).
		ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, err
	}

	passed, failed, skipped, errored := suite.Counts()
	data := struct {
		Suite   *framework.SuiteResult
		Passed  int
		Failed  int
		Skipped int
		Errored int
	}{suite, passed, failed, skipped, errored}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
