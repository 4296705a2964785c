package parsing

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractTextFromPDF returns the plain text of a PDF file.
func ExtractTextFromPDF(pdfData []byte) (text string, err error) {
	// The pdf package panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(pdfData)
	pdfReader, err := pdf.NewReader(reader, int64(len(pdfData)))
	if err != nil {
		return "", fmt.Errorf("error creating PDF reader: %w", err)
	}

	b, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("could not read content of pdf: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("could not read content of pdf: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// IsPDF reports whether filename has a .pdf extension, ignoring case.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// TitleFromFilename turns "Leave Policy.pdf" into "Leave Policy".
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}
