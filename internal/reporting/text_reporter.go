package reporting

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

// TextReporter writes a human-readable report as envelopes arrive. Findings
// are ordered by severity, then file and line.
type TextReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	buf    *bufio.Writer
	total  int
}

// NewTextReporter creates a reporter that writes plain text.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer, buf: bufio.NewWriter(writer)}
}

func (r *TextReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.buf, "Scan %s", result.ScanID)
	if result.Scan != nil {
		fmt.Fprintf(r.buf, " [%s] files scanned: %d", result.Scan.Status, result.Scan.FilesScanned)
		if result.Scan.ErrorMessage != "" {
			fmt.Fprintf(r.buf, " error: %s", result.Scan.ErrorMessage)
		}
	}
	fmt.Fprintf(r.buf, "\n%s\n", strings.Repeat("=", 72))

	if len(result.Findings) == 0 {
		r.buf.WriteString("No findings.\n\n")
		return nil
	}

	ordered := append([]schemas.Finding(nil), result.Findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return lineOf(a) < lineOf(b)
	})

	for _, f := range ordered {
		writeTextFinding(r.buf, f)
	}
	fmt.Fprintf(r.buf, "%d finding(s)\n\n", len(ordered))
	r.total += len(ordered)
	return nil
}

func writeTextFinding(w *bufio.Writer, f schemas.Finding) {
	location := f.FilePath
	if f.LineNumber != nil {
		location = fmt.Sprintf("%s:%d", f.FilePath, *f.LineNumber)
	}
	fmt.Fprintf(w, "[%s] %s  %s", f.Severity, location, f.VulnType)
	if f.CWEID != "" {
		fmt.Fprintf(w, " (%s)", f.CWEID)
	}
	fmt.Fprintf(w, "  confidence=%.2f model=%s\n", f.Confidence, f.ModelUsed)
	if f.Description != "" {
		fmt.Fprintf(w, "    %s\n", f.Description)
	}
	if f.AttackVector != "" {
		fmt.Fprintf(w, "    Attack vector: %s\n", f.AttackVector)
	}
	if f.FixSuggestion != "" {
		fmt.Fprintf(w, "    Fix: %s\n", indentContinuation(f.FixSuggestion))
	}
	if f.CommitHash != "" {
		fmt.Fprintf(w, "    Last changed in %s by %s on %s\n", shortHash(f.CommitHash), f.CommitAuthor, f.CommitDate)
	}
}

// lineOf sorts findings without a line after those with one.
func lineOf(f schemas.Finding) int {
	if f.LineNumber == nil {
		return math.MaxInt
	}
	return *f.LineNumber
}

func indentContinuation(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n         ")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.buf, "Total: %d finding(s)\n", r.total)
	flushErr := r.buf.Flush()
	closeErr := r.writer.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to write text output: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
