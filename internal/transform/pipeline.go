// Package transform implements the Transformer Pipeline (spec §4.F) and the
// steps it runs in fixed order: sanitize, markdown, links, metadata,
// screenshot upload, JSON extract, base64 stripping, and format coercion.
package transform

import (
	"context"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// BlobStore uploads a data-URI screenshot and returns a public URL,
// implemented by internal/blob for step 5 ("uploadScreenshot").
type BlobStore interface {
	Upload(ctx context.Context, dataURI string) (string, error)
}

// Extractor performs step 6's JSON extraction, implemented by
// internal/extract. Kept as a narrow interface here so the pipeline doesn't
// import the extractor package (which in turn depends on transform output).
type Extractor interface {
	Extract(ctx context.Context, markdown string, spec models.ExtractSpec, tracker *models.CostTracker) (map[string]interface{}, error)
}

// Pipeline runs the eight fixed transformer steps over one Document.
type Pipeline struct {
	links  *LinkExtractor
	blob   BlobStore // nil disables step 5; screenshots stay as data URIs
	extract Extractor // nil disables step 6; extract/json formats are skipped
	logger arbor.ILogger
}

// NewPipeline builds a Pipeline. blob and extract may be nil to disable
// their respective optional steps.
func NewPipeline(blob BlobStore, extract Extractor, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		links:   NewLinkExtractor(logger),
		blob:    blob,
		extract: extract,
		logger:  logger,
	}
}

// Run executes the fixed order from §4.F, aborting on the first step that
// returns an error.
func (p *Pipeline) Run(ctx context.Context, meta models.Meta, doc models.Document) (models.Document, error) {
	p.logger.Debug().Str("id", meta.ID).Str("url", meta.EffectiveURL()).Msg("pipeline: running")

	doc, err := p.deriveHTMLFromRawHTML(meta, doc)
	if err != nil {
		p.logger.Warn().Str("id", meta.ID).Err(err).Msg("pipeline: sanitize step failed")
		return doc, err
	}
	doc, err = p.deriveMarkdownFromHTML(meta, doc)
	if err != nil {
		return doc, err
	}
	doc, err = p.deriveLinksFromHTML(meta, doc)
	if err != nil {
		return doc, err
	}
	doc, err = p.deriveMetadataFromRawHTML(meta, doc)
	if err != nil {
		return doc, err
	}
	doc, err = p.uploadScreenshot(ctx, meta, doc)
	if err != nil {
		return doc, err
	}
	doc, err = p.performLLMExtract(ctx, meta, doc)
	if err != nil {
		return doc, err
	}
	doc = p.removeBase64Images(meta, doc)
	doc = p.coerceFieldsToFormats(meta, doc)
	p.logger.Debug().Str("id", meta.ID).Int("links", len(doc.Links)).Msg("pipeline: completed")
	return doc, nil
}

// Step 1.
func (p *Pipeline) deriveHTMLFromRawHTML(meta models.Meta, doc models.Document) (models.Document, error) {
	if doc.RawHTML == "" {
		return doc, nil
	}
	html, err := Sanitize(doc.RawHTML, meta.Options.IncludeTags, meta.Options.ExcludeTags, meta.Options.OnlyMainContent)
	if err != nil {
		return doc, apperr.Wrap(apperr.KindUnsupportedFile, "sanitize failed", err)
	}
	doc.HTML = html
	return doc, nil
}

// Step 2.
func (p *Pipeline) deriveMarkdownFromHTML(meta models.Meta, doc models.Document) (models.Document, error) {
	if doc.HTML == "" {
		return doc, nil
	}
	markdown, err := ToMarkdown(doc.HTML, meta.EffectiveURL())
	if err != nil {
		return doc, apperr.Wrap(apperr.KindUnsupportedFile, "markdown conversion failed", err)
	}
	doc.Markdown = markdown
	return doc, nil
}

// Step 3.
func (p *Pipeline) deriveLinksFromHTML(meta models.Meta, doc models.Document) (models.Document, error) {
	source := doc.RawHTML
	if source == "" {
		return doc, nil
	}
	links, err := p.links.Extract(source, meta.EffectiveURL())
	if err != nil {
		return doc, apperr.Wrap(apperr.KindUnsupportedFile, "link extraction failed", err)
	}
	doc.Links = links
	return doc, nil
}

// Step 4.
func (p *Pipeline) deriveMetadataFromRawHTML(meta models.Meta, doc models.Document) (models.Document, error) {
	if doc.RawHTML == "" {
		return doc, nil
	}
	extracted := ExtractMetadata(doc.RawHTML, meta.EffectiveURL())
	extracted.StatusCode = doc.Metadata.StatusCode
	extracted.URL = doc.Metadata.URL
	extracted.ContentType = doc.Metadata.ContentType
	extracted.NumPages = doc.Metadata.NumPages
	extracted.ProxyUsed = doc.Metadata.ProxyUsed
	doc.Metadata = extracted
	return doc, nil
}

// Step 5.
func (p *Pipeline) uploadScreenshot(ctx context.Context, meta models.Meta, doc models.Document) (models.Document, error) {
	if p.blob == nil || doc.Screenshot == "" || !strings.HasPrefix(doc.Screenshot, "data:") {
		return doc, nil
	}
	publicURL, err := p.blob.Upload(ctx, doc.Screenshot)
	if err != nil {
		// Non-fatal: keep the data URI and attach a warning rather than
		// aborting the whole pipeline over a storage hiccup.
		p.logger.Warn().Str("id", meta.ID).Err(err).Msg("pipeline: screenshot upload failed, kept as data URI")
		return doc.WithWarning("screenshot upload failed, kept as data URI"), nil
	}
	doc.Screenshot = publicURL
	return doc, nil
}

// Step 6.
func (p *Pipeline) performLLMExtract(ctx context.Context, meta models.Meta, doc models.Document) (models.Document, error) {
	if p.extract == nil {
		return doc, nil
	}
	if !meta.Options.HasFormat(models.FormatExtract) && !meta.Options.HasFormat(models.FormatJSON) {
		return doc, nil
	}
	if meta.Options.Extract == nil {
		return doc, nil
	}
	result, err := p.extract.Extract(ctx, doc.Markdown, *meta.Options.Extract, meta.CostTracking)
	if err != nil {
		return doc, err // already a categorized *apperr.Error from the extractor
	}
	doc.Extract = result
	return doc, nil
}

var base64ImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(data:image/[^)]*\)`)

// Step 7.
func (p *Pipeline) removeBase64Images(meta models.Meta, doc models.Document) models.Document {
	if !meta.Options.RemoveBase64Images {
		return doc
	}
	doc.Markdown = base64ImagePattern.ReplaceAllString(doc.Markdown, "![$1](<Base64-Image-Removed>)")
	return doc
}

// Step 8.
func (p *Pipeline) coerceFieldsToFormats(meta models.Meta, doc models.Document) models.Document {
	want := func(f models.Format) bool { return meta.Options.HasFormat(f) }

	if !want(models.FormatMarkdown) {
		doc.Markdown = ""
	}
	if !want(models.FormatHTML) {
		doc.HTML = ""
	}
	if !want(models.FormatRawHTML) {
		doc.RawHTML = ""
	}
	if !want(models.FormatLinks) {
		doc.Links = nil
	}
	if !want(models.FormatScreenshot) && !want(models.FormatScreenshotFull) {
		doc.Screenshot = ""
	}
	if !want(models.FormatExtract) && !want(models.FormatJSON) {
		doc.Extract = nil
	}

	for _, f := range meta.Options.Formats {
		if !formatPresent(doc, f) {
			doc = doc.WithWarning("requested format " + string(f) + " produced no content")
		}
	}
	return doc
}

func formatPresent(doc models.Document, f models.Format) bool {
	switch f {
	case models.FormatMarkdown:
		return doc.Markdown != ""
	case models.FormatHTML:
		return doc.HTML != ""
	case models.FormatRawHTML:
		return doc.RawHTML != ""
	case models.FormatLinks:
		return len(doc.Links) > 0
	case models.FormatScreenshot, models.FormatScreenshotFull:
		return doc.Screenshot != ""
	case models.FormatExtract, models.FormatJSON:
		return len(doc.Extract) > 0
	default:
		return true
	}
}
