// Package extract pulls structured metadata out of stored documents. Each
// supported document kind has its own Strategy; anything else falls back to a
// fixed note.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/model"
)

// Kind is the closed set of extraction strategies.
type Kind int

const (
	KindFallback Kind = iota
	KindPDF
	KindDOCX
	KindDOC
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindDOC:
		return "doc"
	default:
		return "fallback"
	}
}

// KindOf classifies a file extension.
func KindOf(ext string) Kind {
	switch admission.NormalizeExtension(ext) {
	case "pdf":
		return KindPDF
	case "docx":
		return KindDOCX
	case "doc":
		return KindDOC
	default:
		return KindFallback
	}
}

// Strategy turns document bytes into a metadata document.
type Strategy interface {
	Extract(ctx context.Context, data []byte) (model.Metadata, error)
}

// Extractor dispatches to one Strategy per Kind.
type Extractor struct {
	pdf      Strategy
	docx     Strategy
	doc      Strategy
	fallback Strategy
}

// NewExtractor builds the standard strategies. commandTimeout bounds each
// external text conversion used for legacy .doc files.
func NewExtractor(commandTimeout time.Duration) *Extractor {
	return &Extractor{
		pdf:      PDF{},
		docx:     DOCX{},
		doc:      NewDOC(commandTimeout),
		fallback: Fallback{},
	}
}

// Strategy returns the strategy for k.
func (e *Extractor) Strategy(k Kind) Strategy {
	switch k {
	case KindPDF:
		return e.pdf
	case KindDOCX:
		return e.docx
	case KindDOC:
		return e.doc
	default:
		return e.fallback
	}
}

// Extract classifies ext and runs the matching strategy.
func (e *Extractor) Extract(ctx context.Context, ext string, data []byte) (model.Metadata, error) {
	k := KindOf(ext)
	meta, err := e.Strategy(k).Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", k, err)
	}
	return meta, nil
}

// FallbackNote is the note recorded for files without a structured extractor.
const FallbackNote = "structured metadata extraction is not available for this file type"

// Fallback records a note and always succeeds.
type Fallback struct{}

func (Fallback) Extract(context.Context, []byte) (model.Metadata, error) {
	return model.Metadata{"note": FallbackNote}, nil
}
