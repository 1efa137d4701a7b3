package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dharsanguruparan/filevault/internal/model"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DOC converts legacy Word files to text with antiword, falling back to
// catdoc, and derives approximate counts from the text.
type DOC struct {
	timeout time.Duration
	run     CommandRunner
}

// NewDOC returns a DOC strategy that runs real binaries with timeout each.
func NewDOC(timeout time.Duration) DOC {
	return DOC{timeout: timeout, run: execCommand}
}

func (d DOC) Extract(ctx context.Context, data []byte) (model.Metadata, error) {
	tmp, err := os.CreateTemp("", "filevault-*.doc")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	text, err := d.convert(ctx, "antiword", "-m", "UTF-8.txt", path)
	if err != nil {
		var fallbackErr error
		text, fallbackErr = d.convert(ctx, "catdoc", "-w", path)
		if fallbackErr != nil {
			return nil, errors.Join(err, fallbackErr)
		}
	}

	return model.Metadata{
		"paragraphs": countParagraphs(text),
		"tables":     countTabularLines(text),
		"title":      "",
		"author":     "",
		"created":    "",
	}, nil
}

func (d DOC) convert(ctx context.Context, name string, args ...string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	out, err := d.run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

var blankLine = regexp.MustCompile(`\n\s*\n`)

// countParagraphs counts non-blank blocks separated by blank lines.
func countParagraphs(text string) int {
	n := 0
	for _, block := range blankLine.Split(text, -1) {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}

// countTabularLines counts lines with two or more tabs, a rough table signal.
func countTabularLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.Count(line, "\t") >= 2 {
			n++
		}
	}
	return n
}
