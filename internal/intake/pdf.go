package intake

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxNotesRunes = 8000

// ReadPDFText extracts the plain text of a service-record or invoice PDF so it
// can be folded into an intake as free-text notes. Output is truncated to keep
// prompts bounded.
func ReadPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	return truncateRunes(strings.Join(strings.Fields(buf.String()), " "), maxNotesRunes), nil
}

// AppendNotes joins extra notes onto an existing free-text field.
func AppendNotes(existing, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return notes
	}
	return existing + "\n\n" + notes
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
