package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DOCXExtractor reads paragraph text from word/document.xml.
type DOCXExtractor struct{}

func (DOCXExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := openZip(data)
	if err != nil {
		return "", err
	}

	content, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	paragraphs, err := xmlParagraphs(content)
	if err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// PPTXExtractor reads slide text in slide order, one paragraph per slide.
type PPTXExtractor struct{}

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (PPTXExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := openZip(data)
	if err != nil {
		return "", err
	}

	var slides []string
	for _, name := range numberedParts(reader, slidePattern) {
		content, err := readZipFile(reader, name)
		if err != nil {
			return "", err
		}
		paragraphs, err := xmlParagraphs(content)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		if len(paragraphs) > 0 {
			slides = append(slides, strings.Join(paragraphs, "\n"))
		}
	}
	return strings.Join(slides, "\n\n"), nil
}

// XLSXExtractor renders each worksheet row as one line of comma-separated
// cell values, with a blank line between sheets.
type XLSXExtractor struct{}

var sheetPattern = regexp.MustCompile(`^xl/worksheets/sheet(\d+)\.xml$`)

type sharedStringsXML struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type worksheetXML struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func (XLSXExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := openZip(data)
	if err != nil {
		return "", err
	}

	var shared []string
	if content, err := readZipFile(reader, "xl/sharedStrings.xml"); err == nil {
		var sst sharedStringsXML
		if err := xml.Unmarshal(content, &sst); err != nil {
			return "", fmt.Errorf("parse sharedStrings.xml: %w", err)
		}
		for _, item := range sst.Items {
			text := item.Text
			for _, r := range item.Runs {
				text += r.Text
			}
			shared = append(shared, text)
		}
	}

	var sheets []string
	for _, name := range numberedParts(reader, sheetPattern) {
		content, err := readZipFile(reader, name)
		if err != nil {
			return "", err
		}

		var ws worksheetXML
		if err := xml.Unmarshal(content, &ws); err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}

		var lines []string
		for _, row := range ws.Rows {
			var cells []string
			for _, c := range row.Cells {
				value := c.Value
				switch c.Type {
				case "s":
					if idx, err := strconv.Atoi(value); err == nil && idx >= 0 && idx < len(shared) {
						value = shared[idx]
					}
				case "inlineStr":
					value = c.Inline.Text
				}
				if value = strings.TrimSpace(value); value != "" {
					cells = append(cells, value)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, ", "))
			}
		}
		if len(lines) > 0 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}

// OfficeTitle returns the title stored in docProps/core.xml, if any.
func OfficeTitle(data []byte) string {
	reader, err := openZip(data)
	if err != nil {
		return ""
	}
	content, err := readZipFile(reader, "docProps/core.xml")
	if err != nil {
		return ""
	}
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

func openZip(data []byte) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return reader, nil
}

var errPartNotFound = errors.New("part not found")

// ErrPartTooLarge is wrapped in an *Error when an archive part decompresses
// past maxPartSize.
var ErrPartTooLarge = errors.New("archive part too large")

// maxPartSize caps the decompressed size of a single archive part.
var maxPartSize int64 = 64 << 20

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if int64(len(content)) > maxPartSize {
			return nil, fmt.Errorf("%s: %w", name, ErrPartTooLarge)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%s: %w", name, errPartNotFound)
}

// numberedParts lists archive entries matching pattern, ordered by their
// numeric suffix so slide10 follows slide9.
func numberedParts(reader *zip.Reader, pattern *regexp.Regexp) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, file := range reader.File {
		m := pattern.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		parts = append(parts, part{name: file.Name, n: n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	return names
}

// xmlParagraphs collects the text of every <p> element (w:p in Word, a:p in
// DrawingML), concatenating its <t> runs. Tabs and breaks become spaces.
func xmlParagraphs(content []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab", "br":
				current.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
