package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLExtractor strips markup and returns readable text. Block-level
// elements become paragraph breaks; script, style and head content is dropped.
type HTMLExtractor struct{}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Header: true, atom.Footer: true, atom.Hr: true,
}

func (HTMLExtractor) Extract(_ context.Context, data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))

	var (
		paragraphs []string
		current    strings.Builder
		skipDepth  int
	)
	flush := func() {
		if s := collapseSpaces(current.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
		current.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			flush()
			return strings.Join(paragraphs, "\n\n"), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && tt == html.StartTagToken {
				skipDepth++
				continue
			}
			switch {
			case a == atom.Br:
				current.WriteByte(' ')
			case blockElements[a]:
				flush()
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockElements[a] {
				flush()
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			current.Write(z.Text())
			current.WriteByte(' ')
		}
	}
}

// HTMLTitle returns the contents of the <title> element, if any.
func HTMLTitle(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = atom.Lookup(name) == atom.Title
		case html.EndTagToken:
			inTitle = false
		case html.TextToken:
			if inTitle {
				if title := collapseSpaces(string(z.Text())); title != "" {
					return title
				}
			}
		}
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
