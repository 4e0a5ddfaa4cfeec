// Package extractor turns uploaded receipt documents into plain text.
// Receipts arrive either as PDF exports from a banking app or as plain
// text files; scanned images are out of scope.
package extractor

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Document extracts text from receipt bytes. The format is sniffed from
// the content, not the filename.
type Document struct{}

// New returns a document text extractor.
func New() *Document {
	return &Document{}
}

// ExtractText returns the text content of a receipt document. PDF content
// is run through several extraction methods and the first readable result
// wins; anything else is assumed to be UTF-8 text already.
func (d *Document) ExtractText(data []byte) (string, error) {
	if isPDF(data) {
		return extractPDF(data)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("document is neither a PDF nor valid UTF-8 text")
	}
	return text, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

// extractPDF tries the structured extraction methods in order of layout
// fidelity and returns the first readable result. The library panics on
// some malformed files, hence the recover.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("PDF parsing crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}

	if text := extractByRow(r, numPages); isReadableText(text) {
		return text, nil
	}
	if text := extractByContent(r, numPages); isReadableText(text) {
		return text, nil
	}
	if text := extractByPagePlainText(r, numPages); isReadableText(text) {
		return text, nil
	}
	if text := extractByReaderPlainText(r); isReadableText(text) {
		return text, nil
	}

	return "", fmt.Errorf("no readable text in PDF; the file may be image-based or use font encodings that cannot be decoded")
}

// textQuality returns the ratio of readable characters to total. Letters
// cover both Latin and Cyrillic; receipts are mostly Russian with the odd
// English label.
func textQuality(text string) float64 {
	total := 0
	readable := 0
	for _, r := range text {
		total++
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			readable++
		case r >= 'а' && r <= 'я', r >= 'А' && r <= 'Я', r == 'ё', r == 'Ё':
			readable++
		case r >= '0' && r <= '9':
			readable++
		case unicode.IsSpace(r):
			readable++
		case strings.ContainsRune(".,-/:;()'\"₽%№*+=", r):
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear in virtually every transfer receipt. Extracted text
// containing none of them is treated as garbage from an undecodable font.
var commonWords = []string{
	"чек", "перевод", "сумма", "операци", "отправител", "получател",
	"карта", "счет", "счёт", "телефон", "банк", "руб", "комисси",
	"платеж", "зачислени",
}

func containsCommonWords(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range commonWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// isReadableText requires enough text, a high readable-character ratio and
// at least one word a real receipt would contain.
func isReadableText(text string) bool {
	if len(strings.TrimSpace(text)) <= 50 {
		return false
	}
	if textQuality(text) <= 0.6 {
		return false
	}
	return containsCommonWords(text)
}

func extractByRow(r *pdf.Reader, numPages int) string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.Join(pages, "\n\n")
}

// extractByContent reconstructs rows from raw text objects by grouping on
// the Y coordinate and ordering by X.
func extractByContent(r *pdf.Reader, numPages int) string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		type textItem struct {
			x float64
			s string
		}
		rowMap := make(map[int][]textItem)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			yKey := int(math.Round(t.Y))
			rowMap[yKey] = append(rowMap[yKey], textItem{x: t.X, s: t.S})
		}

		// PDF Y grows bottom-to-top.
		yKeys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			yKeys = append(yKeys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(yKeys)))

		var lines []string
		for _, y := range yKeys {
			items := rowMap[y]
			sort.Slice(items, func(a, b int) bool {
				return items[a].x < items[b].x
			})
			var parts []string
			var prevX float64
			for j, item := range items {
				if j > 0 && item.x-prevX > 15 {
					parts = append(parts, "  ")
				}
				parts = append(parts, item.s)
				prevX = item.x
			}
			line := strings.TrimSpace(strings.Join(parts, ""))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.Join(pages, "\n\n")
}

func extractByPagePlainText(r *pdf.Reader, numPages int) string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fontNames := page.Fonts()
		fonts := make(map[string]*pdf.Font)
		for _, name := range fontNames {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n")
}

func extractByReaderPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
