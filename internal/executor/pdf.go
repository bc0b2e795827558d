package executor

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// PDFConverter turns raw pdf bytes into a text/markdown representation.
type PDFConverter interface {
	Convert(data []byte) (string, error)
}

// ErrNoExtractableText is returned when a pdf contains no text the basic
// converter can reach (scanned pages, exotic encodings).
var ErrNoExtractableText = errors.New("no extractable text in pdf")

// BasicPDFConverter extracts text operators from uncompressed content
// streams. It handles simple generated PDFs; compressed or font-subsetted
// documents need an external converter.
type BasicPDFConverter struct{}

var (
	pdfParenText = regexp.MustCompile(`\(([^)]*)\)\s*(?:Tj|TJ|'|")`)
	pdfArrayText = regexp.MustCompile(`\[([^\]]+)\]\s*TJ`)
	pdfParenOnly = regexp.MustCompile(`\(([^)]*)\)`)
	pdfHexText   = regexp.MustCompile(`<([0-9A-Fa-f]+)>\s*(?:Tj|TJ|'|")`)
)

// Convert extracts text from stream objects, page by page.
func (BasicPDFConverter) Convert(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", errors.New("not a pdf document")
	}

	var out strings.Builder
	page := 1
	pos := 0
	for {
		start := bytes.Index(data[pos:], []byte("stream"))
		if start < 0 {
			break
		}
		start += pos + len("stream")
		for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
			start++
		}
		end := bytes.Index(data[start:], []byte("endstream"))
		if end < 0 {
			break
		}
		end += start

		if text := extractOperators(string(data[start:end])); text != "" {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString("## Page " + strconv.Itoa(page) + "\n\n")
			out.WriteString(text)
			page++
		}
		pos = end + len("endstream")
	}

	if out.Len() == 0 {
		return "", ErrNoExtractableText
	}
	return out.String(), nil
}

// extractOperators pulls the strings out of Tj/TJ show-text operators.
func extractOperators(content string) string {
	var b strings.Builder

	for _, m := range pdfParenText.FindAllStringSubmatch(content, -1) {
		if t := decodePDFString(m[1]); t != "" {
			b.WriteString(t)
			b.WriteString(" ")
		}
	}
	for _, m := range pdfArrayText.FindAllStringSubmatch(content, -1) {
		for _, inner := range pdfParenOnly.FindAllStringSubmatch(m[1], -1) {
			b.WriteString(decodePDFString(inner[1]))
		}
		b.WriteString(" ")
	}
	for _, m := range pdfHexText.FindAllStringSubmatch(content, -1) {
		b.WriteString(decodePDFHex(m[1]))
		b.WriteString(" ")
	}

	return strings.TrimSpace(b.String())
}

func decodePDFString(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n", `\r`, "\r", `\t`, "\t",
		`\(`, "(", `\)`, ")", `\\`, `\`,
	)
	return r.Replace(s)
}

func decodePDFHex(s string) string {
	if len(s)%2 != 0 {
		s += "0"
	}
	var b strings.Builder
	for i := 0; i+1 < len(s); i += 2 {
		v, err := strconv.ParseUint(s[i:i+2], 16, 8)
		if err != nil {
			continue
		}
		if v >= 32 && v < 127 {
			b.WriteByte(byte(v))
		}
	}
	return b.String()
}
