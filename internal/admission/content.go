package admission

import (
	"github.com/gabriel-vasile/mimetype"
)

// contentTypes lists the sniffed MIME types accepted for each extension.
// Some detectors report docx as a plain zip archive.
var contentTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	"doc":  {"application/msword", "application/x-msword"},
}

// SniffMIME detects the MIME type of content from its leading bytes.
func SniffMIME(content []byte) string {
	return mimetype.Detect(content).String()
}

// CheckContent verifies that content really is what ext claims. Extensions
// without a known signature are left to Admit's allowlist. The detected
// type's parent chain is walked, so a docx reported as zip still matches.
func CheckContent(ext string, content []byte) error {
	if len(content) == 0 {
		return &RejectedError{Code: CodeEmptyFile}
	}
	ext = NormalizeExtension(ext)
	allowed, known := contentTypes[ext]
	if !known {
		return nil
	}
	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return nil
			}
		}
	}
	return &RejectedError{Code: CodeContentMismatch, Detail: "detected " + detected.String() + " for ." + ext}
}
