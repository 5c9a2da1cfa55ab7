package core

import (
	"context"
	"encoding/json"
	"slices"
)

// Capabilities is a snapshot of what a printer accepts. The JSON shape matches
// the print service: {copies, papers: {name: dims}, medias, dpis, color}.
type Capabilities struct {
	MaxCopies int              `json:"copies" yaml:"copies"`
	Papers    map[string][]int `json:"papers" yaml:"papers"`
	Medias    []string         `json:"medias" yaml:"medias"`
	DPIs      []string         `json:"dpis" yaml:"dpis"`
	Color     bool             `json:"color" yaml:"color"`
}

func (c Capabilities) SupportsPaper(paper string) bool {
	_, ok := c.Papers[paper]
	return ok
}

func (c Capabilities) SupportsMedia(media string) bool {
	return slices.Contains(c.Medias, media)
}

func (c Capabilities) SupportsDPI(dpi string) bool {
	return slices.Contains(c.DPIs, dpi)
}

// Clone returns a deep copy so a Printer never shares backing storage with the
// directory it came from.
func (c Capabilities) Clone() Capabilities {
	out := Capabilities{
		MaxCopies: c.MaxCopies,
		Medias:    slices.Clone(c.Medias),
		DPIs:      slices.Clone(c.DPIs),
		Color:     c.Color,
	}
	if c.Papers != nil {
		out.Papers = make(map[string][]int, len(c.Papers))
		for k, v := range c.Papers {
			out.Papers[k] = slices.Clone(v)
		}
	}
	return out
}

type Printer struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Online       bool         `json:"online"`
	Capabilities Capabilities `json:"capabilities"`
}

func NewPrinter(id int64, name string, online bool, caps Capabilities) *Printer {
	return &Printer{
		ID:           id,
		Name:         name,
		Online:       online,
		Capabilities: caps.Clone(),
	}
}

func (p *Printer) IsOnline() bool {
	return p != nil && p.Online
}

func (p *Printer) Caps() Capabilities {
	return p.Capabilities.Clone()
}

// PrinterDirectory resolves printer identifiers to printers.
type PrinterDirectory interface {
	Get(ctx context.Context, id int64) (*Printer, error)
}

// ContentStore reads job content from a named storage disk.
type ContentStore interface {
	Read(ctx context.Context, disk, path string) ([]byte, error)
}

// Submitter sends a serialized job to the print service.
type Submitter interface {
	Post(ctx context.Context, path string, body any) (*Response, error)
}

// Response is the print service reply, returned to callers untouched.
type Response struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}
