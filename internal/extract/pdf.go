package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	pdf "github.com/ledongthuc/pdf"

	"github.com/dharsanguruparan/filevault/internal/model"
)

// PDF reads the page count and the document information dictionary.
type PDF struct{}

func (PDF) Extract(_ context.Context, data []byte) (meta model.Metadata, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, errors.New("empty pdf")
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}

	info := doc.Trailer().Key("Info")
	return model.Metadata{
		"pages":         doc.NumPage(),
		"author":        info.Key("Author").Text(),
		"title":         info.Key("Title").Text(),
		"creation_date": info.Key("CreationDate").Text(),
		"creator":       info.Key("Creator").Text(),
		"producer":      info.Key("Producer").Text(),
	}, nil
}
