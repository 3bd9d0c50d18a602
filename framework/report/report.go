// Package report renders suite results into the supported output formats:
// json, csv, text and html. Rendering is pure; the only side effect is
// writing the files. A partial suite renders the same way as a complete
// one, so aborted runs still produce reports.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/monitoring-qa/promtest/framework"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// Format is a supported report output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// AllFormats returns every supported format.
func AllFormats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatText, FormatHTML}
}

// ValidFormat reports whether s names a supported format.
func ValidFormat(s string) bool {
	for _, f := range AllFormats() {
		if Format(s) == f {
			return true
		}
	}
	return false
}

// Generator writes suite results to the output directory.
type Generator struct {
	outputDir string
	logger    *slog.Logger
}

// NewGenerator creates a Generator writing into dir.
func NewGenerator(dir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{outputDir: dir, logger: logger}
}

// baseName builds the deterministic file stem: suite name plus the run's
// start timestamp. Two renders of the same suite result name the same files.
func baseName(suite *framework.SuiteResult) string {
	return fmt.Sprintf("%s-%s", suite.Suite, suite.Started.UTC().Format("20060102-150405"))
}

// Write renders the suite in every requested format and returns the written
// paths. It keeps going after a failed format and reports the failures
// joined, so one broken renderer does not suppress the other reports.
func (g *Generator) Write(suite *framework.SuiteResult, formats []string) ([]string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", g.outputDir, err)
	}

	var (
		paths []string
		errs  []string
	)
	for _, f := range formats {
		path := filepath.Join(g.outputDir, baseName(suite)+"."+string(f))

		var (
			data []byte
			err  error
		)
		switch Format(f) {
		case FormatJSON:
			data, err = renderJSON(suite)
		case FormatCSV:
			data, err = renderCSV(suite)
		case FormatText:
			data = []byte(Text(suite))
		case FormatHTML:
			data, err = renderHTML(suite)
		default:
			errs = append(errs, fmt.Sprintf("unknown format %q", f))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
			continue
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
			continue
		}
		g.logger.Info("report written", "format", f, "path", path)
		paths = append(paths, path)
	}

	if len(errs) > 0 {
		return paths, fmt.Errorf("failed to write some reports: %s", strings.Join(errs, "; "))
	}
	return paths, nil
}

// ReadSuite loads a previously written JSON report. The JSON format is the
// canonical one: a suite round-trips through it without loss.
func ReadSuite(path string) (*framework.SuiteResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	var suite framework.SuiteResult
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("invalid report document %s: %w", path, err)
	}
	return &suite, nil
}

func renderJSON(suite *framework.SuiteResult) ([]byte, error) {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// renderCSV writes one row per observation; tests without observations get
// a single row with empty metric columns so every test appears.
func renderCSV(suite *framework.SuiteResult) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{
		"run_id",
		"suite",
		"test_type",
		"status",
		"duration_seconds",
		"metric",
		"value",
		"unit",
		"threshold",
		"direction",
		"verdict",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, result := range suite.Results {
		base := []string{
			suite.RunID,
			suite.Suite,
			string(result.Type),
			string(result.Status),
			strconv.FormatFloat(result.Duration.Seconds(), 'f', 3, 64),
		}

		if len(result.Observations) == 0 {
			row := append(append([]string{}, base...), "", "", "", "", "", "")
			if err := w.Write(row); err != nil {
				return nil, err
			}
			continue
		}

		verdicts := indexVerdicts(result)
		for _, obs := range result.Observations {
			bound, direction, verdict := "", "", ""
			if v, ok := verdicts[obs.Name]; ok {
				verdict = string(v.Status)
				if v.Direction != "" {
					bound = strconv.FormatFloat(v.Threshold, 'f', -1, 64)
					direction = string(v.Direction)
				}
			}
			row := append(append([]string{}, base...),
				obs.Name,
				strconv.FormatFloat(obs.Value, 'f', -1, 64),
				obs.Unit,
				bound,
				direction,
				verdict,
			)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func indexVerdicts(result framework.TestResult) map[string]threshold.Verdict {
	index := make(map[string]threshold.Verdict, len(result.Verdicts))
	for _, v := range result.Verdicts {
		index[v.Metric] = v
	}
	return index
}
