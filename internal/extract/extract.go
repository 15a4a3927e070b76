// Package extract turns input documents into plain text. Extraction never
// fails past this package: unsupported or unreadable files yield "" and a
// log entry.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
)

// Supported extensions.
const (
	ExtText     = ".txt"
	ExtMarkdown = ".md"
	ExtPDF      = ".pdf"
	ExtDOCX     = ".docx"
)

// Extensions lists the formats the extractor reads.
func Extensions() []string {
	return []string{ExtText, ExtMarkdown, ExtPDF, ExtDOCX}
}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtText, ExtMarkdown, ExtPDF, ExtDOCX:
		return true
	}
	return false
}

// Extractor reads documents from disk.
type Extractor struct {
	log *logger.Logger
}

// New returns an extractor that reports problems to log.
func New(log *logger.Logger) *Extractor {
	return &Extractor{log: log}
}

// Text returns the plain text of path, or "" when it cannot be read.
func (e *Extractor) Text(path string) string {
	text, err := e.Extract(path)
	if err != nil {
		e.log.Warn("text extraction failed", "path", path, "error", err)
		return ""
	}
	return text
}

// Extract is Text with the failure reason.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(path) {
		return "", fmt.Errorf("unsupported file format %q", ext)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect format: %w", err)
	}

	switch ext {
	case ExtText, ExtMarkdown:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if !hasUTF16BOM(data) && !isText(mtype) {
			return "", fmt.Errorf("%s content is %s, not text", ext, mtype.String())
		}
		return decodeText(data)
	case ExtDOCX:
		if !mtype.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document") && !mtype.Is("application/zip") {
			return "", fmt.Errorf("%s content is %s, not a Word document", ext, mtype.String())
		}
		return readDOCX(path)
	case ExtPDF:
		if !mtype.Is("application/pdf") {
			return "", fmt.Errorf("%s content is %s, not a PDF", ext, mtype.String())
		}
		return readPDF(path)
	}
	return "", fmt.Errorf("unsupported file format %q", ext)
}

// isText accepts text/* and anything mimetype files under text/plain, such
// as JSON or SVG.
func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") || strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

var (
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE)
}

// decodeText handles UTF-16 with a BOM (Notepad "Unicode"), strips a UTF-8
// BOM and falls back to Windows-1251 for legacy Cyrillic text that is not
// valid UTF-8.
func decodeText(data []byte) (string, error) {
	if hasUTF16BOM(data) {
		endian := unicode.LittleEndian
		if bytes.HasPrefix(data, bomUTF16BE) {
			endian = unicode.BigEndian
		}
		decoded, err := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode utf-16 text: %w", err)
		}
		return string(decoded), nil
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(decoded), nil
}
