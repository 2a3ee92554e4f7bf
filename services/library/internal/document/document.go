// Package document identifies uploaded book files and reads their page count.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/example/pagemark/services/library/internal/store"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// DetectFormat decides between pdf and epub from the declared content type,
// falling back to the leading bytes of the file.
func DetectFormat(contentType string, head []byte) (string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mt) {
	case "application/pdf":
		if !bytes.HasPrefix(head, pdfMagic) {
			return "", fmt.Errorf("%w: body is not a PDF", ErrUnsupportedFormat)
		}
		return store.FormatPDF, nil
	case "application/epub+zip":
		if !bytes.HasPrefix(head, zipMagic) {
			return "", fmt.Errorf("%w: body is not an EPUB container", ErrUnsupportedFormat)
		}
		return store.FormatEPUB, nil
	}
	switch {
	case bytes.HasPrefix(head, pdfMagic):
		return store.FormatPDF, nil
	case bytes.HasPrefix(head, zipMagic):
		return store.FormatEPUB, nil
	}
	return "", ErrUnsupportedFormat
}

// CountPages returns the number of pages in a PDF.
func CountPages(rs io.ReadSeeker) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(rs, conf)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	if n < 1 {
		return 0, errors.New("count pages: document has no pages")
	}
	return n, nil
}
