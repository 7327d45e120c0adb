// Package report renders study reports as markdown and optionally converts
// them to PDF.
package report

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/mandolyte/mdtopdf"

	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/statistics"
)

//go:embed templates/study-report.md.go.tmpl
var fallbackStudyReportTemplate string

// StudyReport is the data rendered into the report template. Deck is
// optional; without it the card-state section is omitted.
type StudyReport struct {
	Title       string
	GeneratedAt time.Time
	Result      statistics.StatisticsResult
	Deck        *deck.Stats
}

// WriteStudyReport renders the report as markdown to output. A template at
// templatePath overrides the embedded one.
func WriteStudyReport(output io.Writer, templatePath string, data StudyReport) error {
	tmpl, err := parseTemplateWithFallback(templatePath, fallbackStudyReportTemplate)
	if err != nil {
		return fmt.Errorf("parseTemplateWithFallback() > %w", err)
	}
	if err := tmpl.Execute(output, data); err != nil {
		return fmt.Errorf("tmpl.Execute() > %w", err)
	}
	return nil
}

// OutputStudyReport writes the markdown report into outputDirectory under
// name.md and returns the markdown path. With generatePDF it also converts
// the file and prints where the PDF landed.
func OutputStudyReport(data StudyReport, outputDirectory, name, templatePath string, generatePDF bool) (string, error) {
	if err := os.MkdirAll(outputDirectory, 0755); err != nil {
		return "", fmt.Errorf("os.MkdirAll(%s) > %w", outputDirectory, err)
	}

	outputFilename := filepath.Join(outputDirectory, name+".md")
	output, err := os.Create(outputFilename)
	if err != nil {
		return "", fmt.Errorf("os.Create(%s) > %w", outputFilename, err)
	}
	defer func() {
		_ = output.Close()
	}()

	if err := WriteStudyReport(output, templatePath, data); err != nil {
		return "", fmt.Errorf("WriteStudyReport(%s) > %w", outputFilename, err)
	}

	if generatePDF {
		pdfPath, err := ConvertMarkdownToPDF(outputFilename)
		if err != nil {
			return "", fmt.Errorf("ConvertMarkdownToPDF(%s) > %w", outputFilename, err)
		}
		fmt.Printf("PDF generated at: %s\n", pdfPath)
	}

	return outputFilename, nil
}

// ConvertMarkdownToPDF converts a markdown file to PDF using mdtopdf package
// The PDF file will be created in the same directory as the markdown file
func ConvertMarkdownToPDF(markdownPath string) (string, error) {
	if !strings.HasSuffix(markdownPath, ".md") {
		return "", fmt.Errorf("input file must have .md extension: %s", markdownPath)
	}

	content, err := os.ReadFile(markdownPath)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile(%s) > %w", markdownPath, err)
	}

	pdfPath := strings.TrimSuffix(markdownPath, ".md") + ".pdf"

	renderer := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", nil, mdtopdf.LIGHT)
	if err := renderer.Process(content); err != nil {
		return "", fmt.Errorf("renderer.Process() > %w", err)
	}

	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return pdfPath, nil
	}

	return absPath, nil
}

func parseTemplateWithFallback(templatePath string, fallbackTemplate string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"percent": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v*100)
		},
	}

	// First, try to read from the filesystem
	if _, err := os.Stat(templatePath); err == nil {
		fileName := filepath.Base(templatePath)
		tmpl, err := template.New(fileName).
			Funcs(funcMap).
			ParseFiles(templatePath)
		if err == nil {
			return tmpl, nil
		}
		slog.Default().Warn("failed to parse a templatePath",
			slog.String("templatePath", templatePath),
			slog.Any("error", err),
		)
	}

	// Fall back to embedded assets
	fileName := "study-report.md.go.tmpl"
	tmpl, err := template.New(fileName).
		Funcs(funcMap).
		Parse(fallbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded template: %w", err)
	}

	return tmpl, nil
}
