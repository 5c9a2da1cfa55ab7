package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

const (
	OptionCopies = "copies"
	OptionPaper  = "paper"
	OptionMedia  = "media"
	OptionDPI    = "dpi"
	OptionColor  = "color"
)

// Options holds job-level settings. The recognized keys are typed; anything
// else lands in Extra and is sent to the print service unvalidated.
type Options struct {
	Copies *int
	Paper  *string
	Media  *string
	DPI    *string
	Color  *bool
	Extra  map[string]any
}

// OptionsFromMap converts a flat option map, as found in config files and
// request bodies, into Options.
func OptionsFromMap(m map[string]any) (Options, error) {
	var o Options
	for k, v := range m {
		switch k {
		case OptionCopies:
			n, err := toInt(v)
			if err != nil {
				return Options{}, fmt.Errorf("option %s: %w", k, err)
			}
			o.Copies = &n
		case OptionPaper:
			s := toString(v)
			o.Paper = &s
		case OptionMedia:
			s := toString(v)
			o.Media = &s
		case OptionDPI:
			s := toString(v)
			o.DPI = &s
		case OptionColor:
			b := truthy(v)
			o.Color = &b
		default:
			if o.Extra == nil {
				o.Extra = make(map[string]any)
			}
			o.Extra[k] = v
		}
	}
	return o, nil
}

// Map flattens the options back into the wire representation.
func (o Options) Map() map[string]any {
	m := make(map[string]any, len(o.Extra)+5)
	maps.Copy(m, o.Extra)
	if o.Copies != nil {
		m[OptionCopies] = *o.Copies
	}
	if o.Paper != nil {
		m[OptionPaper] = *o.Paper
	}
	if o.Media != nil {
		m[OptionMedia] = *o.Media
	}
	if o.DPI != nil {
		m[OptionDPI] = *o.DPI
	}
	if o.Color != nil {
		m[OptionColor] = *o.Color
	}
	return m
}

// Merge overlays other onto o. Keys set in other win; keys only in o survive.
func (o Options) Merge(other Options) Options {
	out := o.Clone()
	if other.Copies != nil {
		out.Copies = ptr(*other.Copies)
	}
	if other.Paper != nil {
		out.Paper = ptr(*other.Paper)
	}
	if other.Media != nil {
		out.Media = ptr(*other.Media)
	}
	if other.DPI != nil {
		out.DPI = ptr(*other.DPI)
	}
	if other.Color != nil {
		out.Color = ptr(*other.Color)
	}
	if len(other.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(other.Extra))
		}
		maps.Copy(out.Extra, other.Extra)
	}
	return out
}

func (o Options) Clone() Options {
	out := Options{Extra: maps.Clone(o.Extra)}
	if o.Copies != nil {
		out.Copies = ptr(*o.Copies)
	}
	if o.Paper != nil {
		out.Paper = ptr(*o.Paper)
	}
	if o.Media != nil {
		out.Media = ptr(*o.Media)
	}
	if o.DPI != nil {
		out.DPI = ptr(*o.DPI)
	}
	if o.Color != nil {
		out.Color = ptr(*o.Color)
	}
	return out
}

func (o Options) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Map())
}

func (o *Options) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := OptionsFromMap(m)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	default:
		return v != nil
	}
}
