package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// PDFEngine fetches a PDF over HTTP and extracts its text via pdfcpu,
// backing the "pdf-parser" Engine and the ParsePDF ScrapeOption. Grounded
// on internal/services/pdf/extractor.go's ExtractTextFromBytes.
type PDFEngine struct {
	client  *http.Client
	tempDir string
	logger  arbor.ILogger
}

// NewPDFEngine builds a PDFEngine using os.TempDir for scratch files.
func NewPDFEngine(logger arbor.ILogger) *PDFEngine {
	return &PDFEngine{
		client:  &http.Client{Timeout: 60 * time.Second},
		tempDir: os.TempDir(),
		logger:  logger,
	}
}

// Descriptor implements Engine.
func (p *PDFEngine) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{
		Name:                models.EnginePDFParser,
		SupportedFlags:      models.NewFeatureSet(models.FeaturePDF),
		UnsupportedFlagCost: 5,
		Quality:             60,
		TypicalTimeMS:       5000,
		MaxReasonableTimeMS: 30000,
	}
}

// Scrape downloads and extracts PDF text. On antibot-looking responses
// (HTML instead of a PDF body) it returns PDFAntibotError per §4.E step 3.
func (p *PDFEngine) Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.EffectiveURL(), nil)
	if err != nil {
		return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.Wrap(apperr.KindEngineError, "failed to build pdf request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.Wrap(apperr.KindEngineError, "pdf fetch failed", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.Wrap(apperr.KindEngineError, "failed to read pdf body", err)
	}

	if !strings.Contains(contentType, "pdf") && !strings.HasPrefix(string(body), "%PDF") {
		if len(meta.PDFPrefetch) == 0 {
			return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.New(apperr.KindPDFAntibot, "response is not a PDF, likely an antibot page")
		}
		return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.New(apperr.KindPDFPrefetchFailed, "prefetched content was not a PDF either")
	}

	text, numPages, err := p.extractText(body)
	if err != nil {
		return models.EngineScrapeResult{Engine: models.EnginePDFParser}, apperr.Wrap(apperr.KindUnsupportedFile, "failed to extract pdf text", err)
	}

	return models.EngineScrapeResult{
		Engine:     models.EnginePDFParser,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		RawHTML:    "<pre>" + text + "</pre>",
		PDFBytes:   body,
		NumPages:   numPages,
		Duration:   time.Since(start),
	}, nil
}

func (p *PDFEngine) extractText(pdfBytes []byte) (string, int, error) {
	tempFile := filepath.Join(p.tempDir, fmt.Sprintf("scrapeforge_%d.pdf", time.Now().UnixNano()))
	if err := os.WriteFile(tempFile, pdfBytes, 0o644); err != nil {
		return "", 0, fmt.Errorf("write temp pdf: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("read pdf context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(p.tempDir, fmt.Sprintf("scrapeforge_pages_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("make scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return "", 0, fmt.Errorf("extract pdf content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	var out strings.Builder
	for page := 1; page <= pageCount; page++ {
		if text, ok := pageTexts[page]; ok {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(text)
		}
	}
	return out.String(), pageCount, nil
}
