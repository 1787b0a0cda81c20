// Package printing turns print requests into device jobs: it validates the
// request, dispatches by document type and reports a uniform result.
package printing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adcondev/print-servicio/internal/paper"
)

// DocumentType selects how the document bytes reach the printer.
type DocumentType string

// Supported document types.
const (
	PDF DocumentType = "PDF"
	ZPL DocumentType = "ZPL"
)

// Sentinel errors for request validation.
var (
	ErrNotFound        = errors.New("printer not found")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrEmptyDocument   = errors.New("empty document")
)

// ParseDocumentType resolves a case-insensitive document type.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: document type %q", ErrUnsupportedType, s)
	}
	return t, nil
}

// Valid reports whether t is a supported document type.
func (t DocumentType) Valid() bool {
	return t == PDF || t == ZPL
}

// PrintJobRequest is one submission. It is consumed once.
type PrintJobRequest struct {
	PrinterID string
	Document  []byte
	Type      DocumentType
	Paper     paper.Format // ignored for ZPL
	Copies    int          // ≤ 0 means 1
}

// NewRequest builds a request from caller-supplied fields, rejecting empty
// documents, unknown document types and, for PDF, unknown paper formats.
func NewRequest(printerID, docType, paperFormat string, copies int, document []byte) (PrintJobRequest, error) {
	if len(document) == 0 {
		return PrintJobRequest{}, ErrEmptyDocument
	}
	t, err := ParseDocumentType(docType)
	if err != nil {
		return PrintJobRequest{}, err
	}

	req := PrintJobRequest{
		PrinterID: printerID,
		Document:  document,
		Type:      t,
		Copies:    copies,
	}
	if t == PDF {
		f, err := paper.Parse(paperFormat)
		if err != nil {
			return PrintJobRequest{}, fmt.Errorf("%w: paper format %q", ErrUnsupportedType, paperFormat)
		}
		req.Paper = f
	}
	return req, nil
}

// PrintResult is the outcome reported to callers.
type PrintResult struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message"`
}

func failure(msg string) PrintResult {
	return PrintResult{Success: false, Message: msg}
}
