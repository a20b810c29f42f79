package player

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// JSONPrinter writes the resolved stream as JSON instead of playing it, for
// piping into other tools.
type JSONPrinter struct {
	w io.Writer
}

// NewJSONPrinter returns a printer writing to w.
func NewJSONPrinter(w io.Writer) *JSONPrinter { return &JSONPrinter{w: w} }

func (p *JSONPrinter) Name() string    { return "json" }
func (p *JSONPrinter) Available() bool { return true }

type streamJSON struct {
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	StartAt  float64           `json:"start_at,omitempty"`
}

// Play prints req and reports the stream as started at its offset.
func (p *JSONPrinter) Play(_ context.Context, req Request) (Result, error) {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(streamJSON{
		Title:    req.Title,
		URL:      req.URL,
		Headers:  req.Headers,
		Subtitle: req.Subtitle,
		StartAt:  req.StartAt,
	}); err != nil {
		return Result{}, fmt.Errorf("writing stream json: %w", err)
	}
	return Result{Position: req.StartAt}, nil
}
