// ABOUTME: Document parsing contract and error taxonomy for source materials (PDFs, filings, decks).
// ABOUTME: Distinguishes rate-limit errors, which are retryable, from format errors, which are not.
package docparse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Document is the extracted text of one parsed source file.
type Document struct {
	// Text is the full extracted text.
	Text string `json:"text"`
	// Pages is the page count when the source format has pages, else 0.
	Pages int `json:"pages"`
	// Length is the character count of Text.
	Length int `json:"length"`
}

// Parser converts raw file bytes into a Document.
// Implementations wrap external parsing services or local extractors and
// classify failures as *ParseError so the pool can decide on retries.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Document, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, data []byte) (*Document, error)

func (f ParserFunc) Parse(ctx context.Context, data []byte) (*Document, error) {
	return f(ctx, data)
}

// Error kinds for ParseError.
const (
	KindRateLimit = "rate_limit"
	KindFormat    = "format"
)

// ParseError classifies a parsing failure. Rate-limit errors are transient
// and retried with backoff; format errors are permanent and surface
// immediately.
type ParseError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *ParseError) IsRetryable() bool { return e.Kind == KindRateLimit }

// NewRateLimitError creates a retryable ParseError.
func NewRateLimitError(message string, err error) *ParseError {
	return &ParseError{Kind: KindRateLimit, Message: message, Err: err}
}

// NewFormatError creates a permanent ParseError.
func NewFormatError(message string, err error) *ParseError {
	return &ParseError{Kind: KindFormat, Message: message, Err: err}
}

// Hash returns the hex-encoded SHA-256 digest of the document bytes. It is
// the cache key: identical bytes always map to the same parsed result.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
