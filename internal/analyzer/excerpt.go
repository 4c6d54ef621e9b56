package analyzer

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

type extractor func(path string) (string, error)

var extractors = map[string]extractor{
	"text/plain":      plainText,
	"text/csv":        plainText,
	"application/pdf": pdfText,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ooxmlText("word/document.xml", "t", "p"),
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ooxmlText("xl/sharedStrings.xml", "t", "si"),
}

// Excerpt returns at most SummaryLimit runes of text for the given media type.
// It never fails: unsupported types and extractor errors yield placeholder strings.
func Excerpt(path, mimeType string) (summary string) {
	ex, ok := extractors[mimeType]
	if !ok {
		return SummaryUnsupported
	}
	defer func() {
		if r := recover(); r != nil {
			summary = SummaryFailed
		}
	}()
	text, err := ex(path)
	if err != nil {
		return SummaryFailed
	}
	return truncateRunes(text, SummaryLimit)
}

func truncateRunes(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func plainText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	// A UTF-8 rune is at most 4 bytes.
	b, err := io.ReadAll(io.LimitReader(f, SummaryLimit*utf8.UTFMax))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var errNoText = errors.New("no text found")

func pdfText(path string) (string, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var sb strings.Builder
	for page := 1; page <= ctx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		sb.WriteString(contentStreamText(content))
		if utf8.RuneCountInString(sb.String()) >= SummaryLimit {
			break
		}
	}
	if sb.Len() == 0 {
		return "", errNoText
	}
	return sb.String(), nil
}

// contentStreamText collects literal strings from a page content stream.
// Hex strings and font encodings are ignored; text objects are separated by newlines.
func contentStreamText(content []byte) string {
	var sb strings.Builder
	for i := 0; i < len(content); i++ {
		switch c := content[i]; {
		case c == '(':
			s, next := readLiteral(content, i+1)
			sb.WriteString(s)
			i = next
		case c == 'E' && i+1 < len(content) && content[i+1] == 'T' && isDelimited(content, i, 2):
			sb.WriteByte('\n')
			i++
		}
	}
	return sb.String()
}

func isDelimited(b []byte, at, n int) bool {
	before := at == 0 || isSpace(b[at-1])
	after := at+n >= len(b) || isSpace(b[at+n])
	return before && after
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

// readLiteral reads a PDF literal string starting after its opening parenthesis.
// It returns the decoded text and the index of the closing parenthesis.
func readLiteral(b []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 1
	for i := start; i < len(b); i++ {
		c := b[i]
		switch c {
		case '\\':
			if i+1 >= len(b) {
				return sb.String(), i
			}
			i++
			switch b[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r', 't', 'b', 'f':
				sb.WriteByte(' ')
			case '\r', '\n':
			default:
				if b[i] >= '0' && b[i] <= '7' {
					v, j := 0, i
					for ; j < len(b) && j < i+3 && b[j] >= '0' && b[j] <= '7'; j++ {
						v = v*8 + int(b[j]-'0')
					}
					sb.WriteByte(byte(v))
					i = j - 1
				} else {
					sb.WriteByte(b[i])
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), len(b)
}

// ooxmlText pulls character data of textElem elements out of one part of an
// Office Open XML package, breaking lines at the end of each blockElem.
func ooxmlText(part, textElem, blockElem string) extractor {
	return func(path string) (string, error) {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return "", err
		}
		defer zr.Close()

		f, err := zr.Open(part)
		if err != nil {
			return "", err
		}
		defer f.Close()

		var sb strings.Builder
		dec := xml.NewDecoder(f)
		inText := false
		for sb.Len() < SummaryLimit*utf8.UTFMax {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				inText = t.Name.Local == textElem
			case xml.EndElement:
				if t.Name.Local == textElem {
					inText = false
				}
				if t.Name.Local == blockElem {
					sb.WriteByte('\n')
				}
			case xml.CharData:
				if inText {
					sb.Write(bytes.TrimRight(t, "\x00"))
				}
			}
		}
		if sb.Len() == 0 {
			return "", errNoText
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}
}
