package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dharsanguruparan/filevault/internal/model"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// DOCX counts body paragraphs and tables and reads the core properties.
type DOCX struct{}

func (DOCX) Extract(_ context.Context, data []byte) (model.Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	body, err := openEntry(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	paragraphs, tables, err := countBody(body)
	body.Close()
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	var props coreProperties
	if rc, err := openEntry(zr, "docProps/core.xml"); err == nil {
		decodeErr := xml.NewDecoder(rc).Decode(&props)
		rc.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("parse core.xml: %w", decodeErr)
		}
	}

	return model.Metadata{
		"paragraphs": paragraphs,
		"tables":     tables,
		"title":      strings.TrimSpace(props.Title),
		"author":     strings.TrimSpace(props.Creator),
		"created":    formatCreated(props.Created),
	}, nil
}

type coreProperties struct {
	Title   string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Created string `xml:"http://purl.org/dc/terms/ created"`
}

var errMissingEntry = errors.New("missing docx part")

func openEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%w: %s", errMissingEntry, name)
}

// countBody counts paragraphs with text and tables that sit directly under
// w:body. Paragraphs nested in tables or text boxes are not counted.
func countBody(r io.Reader) (paragraphs, tables int, err error) {
	dec := xml.NewDecoder(r)
	var stack []string
	var inPara, inText bool
	var paraHasText bool

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return paragraphs, tables, nil
		}
		if err != nil {
			return 0, 0, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := ""
			if t.Name.Space == wordNS {
				name = t.Name.Local
			}
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			switch {
			case name == "p" && parent == "body":
				inPara, paraHasText = true, false
			case name == "tbl" && parent == "body":
				tables++
			case name == "t" && inPara:
				inText = true
			case name == "tab" && inPara:
				paraHasText = true
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			name := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch {
			case name == "t":
				inText = false
			case name == "p" && inPara && len(stack) > 0 && stack[len(stack)-1] == "body":
				if paraHasText {
					paragraphs++
				}
				inPara = false
			}
		case xml.CharData:
			if inText && len(t) > 0 {
				paraHasText = true
			}
		}
	}
}

func formatCreated(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC().Format("2006-01-02 15:04:05")
	}
	return raw
}
