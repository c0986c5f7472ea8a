package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials that may leak into log lines.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a redactor for the credentials this bridge handles.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Voiceflow Dialog Manager API keys
			regexp.MustCompile(`VF\.(?:DM\.)?[A-Za-z0-9]+\.[A-Za-z0-9]+`),

			// Bot Framework connector tokens
			regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]+`),

			// Telegram bot tokens
			regexp.MustCompile(`\d{8,10}:[A-Za-z0-9_-]{30,}`),

			// Client secrets in form bodies and query strings
			regexp.MustCompile(`client_secret=[^&\s"]+`),
		},
	}
}

// Redact replaces every credential match in s.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// Wrap returns a writer that redacts each write before forwarding it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers never see a short write for masked bytes.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
