package core

import "fmt"

// Validate checks the job options against the bound printer's capabilities and
// splits the copy count across a primary and an overflow job when needed.
// An overflow job from an earlier call is kept unless this call splits again.
func (j *Job) Validate() error {
	if j.printer == nil {
		return ErrPrinterNotDefined
	}
	caps := j.printer.Capabilities
	opts := &j.attrs.Options

	// An overflow job already carries the remainder and is never split again.
	if opts.Copies != nil && !j.isOverflow {
		j.split(caps.MaxCopies)
	}

	if opts.Paper != nil && !caps.SupportsPaper(*opts.Paper) {
		return fmt.Errorf("%w: %s", ErrUnsupportedPaper, *opts.Paper)
	}
	if opts.Media != nil && !caps.SupportsMedia(*opts.Media) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMedia, *opts.Media)
	}
	if opts.DPI != nil && !caps.SupportsDPI(*opts.DPI) {
		return fmt.Errorf("%w: %s", ErrUnsupportedDPI, *opts.DPI)
	}

	// Unsupported color is downgraded, not rejected.
	if opts.Color != nil && *opts.Color && !caps.Color {
		opts.Color = ptr(false)
	}
	return nil
}

// split only fires when the printer maximum is strictly greater than the
// requested copies per job.
func (j *Job) split(maxCopies int) {
	copies := *j.attrs.Options.Copies
	if maxCopies <= 0 || maxCopies <= copies {
		return
	}

	j.overflow = nil
	total := j.attrs.Qty * copies
	remainder := total % maxCopies
	if remainder > 0 {
		overflow := j.clone()
		overflow.isOverflow = true
		overflow.attrs.Qty = 1
		overflow.attrs.Options.Copies = ptr(remainder)
		j.overflow = overflow
		total -= remainder
	}

	j.attrs.Qty = floorDiv(total, maxCopies)
	j.attrs.Options.Copies = ptr(maxCopies)
}

// floorDiv rounds toward negative infinity, unlike Go's integer division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
