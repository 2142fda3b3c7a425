// Package extract converts uploaded files into plain text for chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Format identifies a supported source format. The value doubles as the
// document type tag stored with ingested documents.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	CSV      Format = "csv"
	HTML     Format = "html"
	DOCX     Format = "docx"
	PPTX     Format = "pptx"
	XLSX     Format = "xlsx"
	PDF      Format = "pdf"
)

var (
	// ErrUnsupportedFormat is returned when neither the MIME type nor the
	// filename extension maps to a known format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyContent is wrapped in an *Error when a file yields no text.
	ErrEmptyContent = errors.New("no text content")
)

// Error reports a failure to extract text from a file of a known format.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor converts the raw bytes of one format to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

var mimeFormats = map[string]Format{
	"text/plain":            Text,
	"text/markdown":         Markdown,
	"text/x-markdown":       Markdown,
	"text/csv":              CSV,
	"application/csv":       CSV,
	"text/html":             HTML,
	"application/xhtml+xml": HTML,
	"application/pdf":       PDF,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   DOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": PPTX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         XLSX,
}

var extFormats = map[string]Format{
	".txt":      Text,
	".text":     Text,
	".log":      Text,
	".md":       Markdown,
	".markdown": Markdown,
	".csv":      CSV,
	".html":     HTML,
	".htm":      HTML,
	".docx":     DOCX,
	".pptx":     PPTX,
	".xlsx":     XLSX,
	".pdf":      PDF,
}

// Infer picks a format from the declared MIME type, falling back to the
// filename extension when the MIME type is missing or generic.
func Infer(mimeType, filename string) (Format, error) {
	if mimeType != "" {
		mediaType, _, err := mime.ParseMediaType(mimeType)
		if err == nil {
			if f, ok := mimeFormats[strings.ToLower(mediaType)]; ok {
				return f, nil
			}
		}
	}

	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f, nil
	}

	return "", fmt.Errorf("%w: mime %q, file %q", ErrUnsupportedFormat, mimeType, filename)
}

// Registry dispatches extraction to the Extractor registered for each format.
type Registry struct {
	extractors map[Format]Extractor
}

// Option configures a Registry.
type Option func(*Registry)

// WithCommandRunner sets the runner used by the PDF extractor.
func WithCommandRunner(r CommandRunner) Option {
	return func(reg *Registry) {
		reg.extractors[PDF] = NewPDFExtractor(r)
	}
}

// NewRegistry creates a Registry with every supported format registered.
func NewRegistry(opts ...Option) *Registry {
	reg := &Registry{
		extractors: map[Format]Extractor{
			Text:     TextExtractor{},
			Markdown: NewMarkdownExtractor(),
			CSV:      CSVExtractor{},
			HTML:     HTMLExtractor{},
			DOCX:     DOCXExtractor{},
			PPTX:     PPTXExtractor{},
			XLSX:     XLSXExtractor{},
			PDF:      NewPDFExtractor(nil),
		},
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Extract infers the format of data and returns its text.
// Empty output is reported as an *Error wrapping ErrEmptyContent.
func (r *Registry) Extract(ctx context.Context, data []byte, mimeType, filename string) (string, Format, error) {
	format, err := Infer(mimeType, filename)
	if err != nil {
		return "", "", err
	}

	extractor, ok := r.extractors[format]
	if !ok {
		return "", format, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return "", format, &Error{Format: format, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", format, &Error{Format: format, Err: ErrEmptyContent}
	}
	return text, format, nil
}

var defaultRegistry = NewRegistry()

// Extract uses the default registry.
func Extract(ctx context.Context, data []byte, mimeType, filename string) (string, Format, error) {
	return defaultRegistry.Extract(ctx, data, mimeType, filename)
}

// Title derives a display title from the file itself, falling back to the filename.
func Title(data []byte, format Format, filename string) string {
	var title string
	switch format {
	case Markdown:
		title = NewMarkdownExtractor().Title(data)
	case HTML:
		title = HTMLTitle(data)
	case DOCX, PPTX, XLSX:
		title = OfficeTitle(data)
	}
	if title != "" {
		return title
	}
	return TitleFromFilename(filename)
}

// TitleFromFilename turns "q3_refund-policy.pdf" into "q3 refund policy".
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
