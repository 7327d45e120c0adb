package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/statistics"
)

func testReport() StudyReport {
	return StudyReport{
		Title:       "Study report",
		GeneratedAt: time.Date(2025, 4, 30, 18, 0, 0, 0, time.UTC),
		Result: statistics.StatisticsResult{
			Periods: []statistics.ReviewStatistics{
				{Period: "2025-04", NewCards: 1, Reviews: 3, Lapses: 1, UniqueCards: 2, CorrectRate: 2.0 / 3.0},
				{Period: "2025-03", NewCards: 2, Reviews: 3, Lapses: 0, UniqueCards: 2, CorrectRate: 1},
			},
			Aggregate: statistics.AggregateStatistics{
				NewCards:    3,
				Reviews:     6,
				Lapses:      1,
				UniqueCards: 3,
				CorrectRate: 5.0 / 6.0,
			},
		},
	}
}

func TestWriteStudyReport(t *testing.T) {
	tests := []struct {
		name         string
		templatePath string
		wantContents []string
	}{
		{
			name:         "uses embedded template when file doesn't exist",
			templatePath: "/non/existent/invalid.md.go.tmpl",
			wantContents: []string{
				"# Study report",
				"Generated on 2025-04-30.",
				"- Reviews: 6",
				"- Correct rate: 83.3%",
				"| 2025-04 | 1 | 3 | 1 | 2 | 66.7% |",
				"| 2025-03 | 2 | 3 | 0 | 2 | 100.0% |",
			},
		},
		{
			name: "uses filesystem template when available",
			templatePath: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "custom-report.md.go.tmpl")
				content := `Custom: {{ .Title }} ({{ percent .Result.Aggregate.CorrectRate }})`
				require.NoError(t, os.WriteFile(path, []byte(content), 0644))
				return path
			}(t),
			wantContents: []string{"Custom: Study report (83.3%)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteStudyReport(&buf, tt.templatePath, testReport()))

			for _, want := range tt.wantContents {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestWriteStudyReport_DeckSection(t *testing.T) {
	data := testReport()

	var buf bytes.Buffer
	require.NoError(t, WriteStudyReport(&buf, "", data))
	assert.NotContains(t, buf.String(), "## Cards")

	data.Deck = &deck.Stats{Total: 50, New: 10, Learning: 5, Review: 30, Relearning: 5, Due: 12}
	buf.Reset()
	require.NoError(t, WriteStudyReport(&buf, "", data))
	assert.Contains(t, buf.String(), "## Cards")
	assert.Contains(t, buf.String(), "| 50 | 10 | 5 | 30 | 5 | 12 |")
}

func TestWriteStudyReport_BrokenTemplateFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.md.go.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .Title"), 0644))

	var buf bytes.Buffer
	require.NoError(t, WriteStudyReport(&buf, path, testReport()))
	assert.Contains(t, buf.String(), "## Overview")
}

func TestOutputStudyReport(t *testing.T) {
	dir := t.TempDir()

	path, err := OutputStudyReport(testReport(), dir, "study-2025", "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "study-2025.md"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Study report")
}

func TestConvertMarkdownToPDF(t *testing.T) {
	tests := []struct {
		name         string
		markdownPath func(t *testing.T) string
		wantErrMsg   string
	}{
		{
			name:         "invalid extension",
			markdownPath: func(t *testing.T) string { return "report.txt" },
			wantErrMsg:   "must have .md extension",
		},
		{
			name:         "file not found",
			markdownPath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.md") },
			wantErrMsg:   "os.ReadFile",
		},
		{
			name: "successful conversion",
			markdownPath: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "report.md")
				content := []byte("# Study report\n\nReviewed 6 cards this month.\n")
				require.NoError(t, os.WriteFile(path, content, 0644))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdfPath, err := ConvertMarkdownToPDF(tt.markdownPath(t))

			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ".pdf", filepath.Ext(pdfPath))

			info, err := os.Stat(pdfPath)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))
		})
	}
}
