package core

import (
	"context"
	"encoding/base64"
	"fmt"
)

type ContentType string

const (
	ContentRawBase64 ContentType = "raw_base64"
	ContentPDFBase64 ContentType = "pdf_base64"
	ContentRawURI    ContentType = "raw_uri"
	ContentPDFURI    ContentType = "pdf_uri"
)

func (t ContentType) IsURI() bool {
	return t == ContentRawURI || t == ContentPDFURI
}

type AuthType string

const (
	AuthBasic  AuthType = "BasicAuth"
	AuthDigest AuthType = "DigestAuth"
)

type Credentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type Authentication struct {
	Type        AuthType    `json:"type"`
	Credentials Credentials `json:"credentials"`
}

// Attributes is the serialized form of a job as posted to the print service.
type Attributes struct {
	PrinterID      int64           `json:"printerId,omitempty"`
	ContentType    ContentType     `json:"contentType"`
	Content        string          `json:"content"`
	Source         string          `json:"source"`
	Title          string          `json:"title,omitempty"`
	Qty            int             `json:"qty"`
	Options        Options         `json:"options"`
	Authentication *Authentication `json:"authentication,omitempty"`
	ExpireAfter    *int            `json:"expireAfter,omitempty"`
}

func (a Attributes) clone() Attributes {
	out := a
	out.Options = a.Options.Clone()
	if a.Authentication != nil {
		auth := *a.Authentication
		out.Authentication = &auth
	}
	if a.ExpireAfter != nil {
		out.ExpireAfter = ptr(*a.ExpireAfter)
	}
	return out
}

// Job is a print request being configured. Setters only record values;
// nothing is checked against the printer until Print.
type Job struct {
	svc      *Service
	printer  *Printer
	attrs    Attributes
	overflow *Job

	isOverflow bool
}

func (j *Job) SetQuantity(n int) *Job {
	j.attrs.Qty = n
	return j
}

func (j *Job) SetCopies(n int) *Job {
	if n <= 0 {
		n = 1
	}
	return j.SetOptions(Options{Copies: &n})
}

func (j *Job) SetOptions(opts Options) *Job {
	j.attrs.Options = j.attrs.Options.Merge(opts)
	return j
}

func (j *Job) SetExpireAfter(seconds int) *Job {
	j.attrs.ExpireAfter = &seconds
	return j
}

func (j *Job) SetSource(source string) *Job {
	j.attrs.Source = source
	return j
}

func (j *Job) SetTitle(title string) *Job {
	j.attrs.Title = title
	return j
}

// SetContentFile loads content from a storage disk and embeds it base64 encoded.
func (j *Job) SetContentFile(ctx context.Context, disk, path string, raw bool) (*Job, error) {
	if j.svc == nil || j.svc.storage == nil {
		return j, fmt.Errorf("%w: no storage configured", ErrContentNotFound)
	}
	data, err := j.svc.storage.Read(ctx, disk, path)
	if err != nil {
		return j, fmt.Errorf("%w: %s:%s: %v", ErrContentNotFound, disk, path, err)
	}
	return j.SetContentBytes(data, raw), nil
}

func (j *Job) SetContentBytes(data []byte, raw bool) *Job {
	j.attrs.Content = base64.StdEncoding.EncodeToString(data)
	if raw {
		j.attrs.ContentType = ContentRawBase64
	} else {
		j.attrs.ContentType = ContentPDFBase64
	}
	return j
}

// SetContentURI points the job at a remote document. creds may be nil; when
// present it must carry a username and password.
func (j *Job) SetContentURI(uri string, raw bool, creds map[string]string, basic bool) (*Job, error) {
	j.attrs.Content = uri
	if raw {
		j.attrs.ContentType = ContentRawURI
	} else {
		j.attrs.ContentType = ContentPDFURI
	}
	if creds != nil {
		return j.SetAuthentication(creds, basic)
	}
	return j, nil
}

func (j *Job) SetAuthentication(creds map[string]string, basic bool) (*Job, error) {
	user, hasUser := creds["username"]
	pass, hasPass := creds["password"]
	if !hasUser || !hasPass {
		return j, fmt.Errorf("%w: username and password are required", ErrInvalidCredentials)
	}
	authType := AuthDigest
	if basic {
		authType = AuthBasic
	}
	j.attrs.Authentication = &Authentication{
		Type:        authType,
		Credentials: Credentials{User: user, Pass: pass},
	}
	return j, nil
}

// PrinterRef names the printer a job should go to: either a resolved printer
// or an id still to be looked up in the directory.
type PrinterRef struct {
	printer *Printer
	id      int64
}

func PrinterValue(p *Printer) PrinterRef {
	return PrinterRef{printer: p}
}

func PrinterID(id int64) PrinterRef {
	return PrinterRef{id: id}
}

func (r PrinterRef) resolve(ctx context.Context, dir PrinterDirectory) (*Printer, error) {
	if r.printer != nil {
		return r.printer, nil
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: no directory to resolve printer %d", ErrPrinterNotDefined, r.id)
	}
	p, err := dir.Get(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve printer %d: %w", r.id, err)
	}
	return p, nil
}

// SetPrinter binds the job to a printer. The online flag is checked here and
// not again at submission.
func (j *Job) SetPrinter(ctx context.Context, ref PrinterRef) (*Job, error) {
	var dir PrinterDirectory
	if j.svc != nil {
		dir = j.svc.directory
	}
	p, err := ref.resolve(ctx, dir)
	if err != nil {
		return j, err
	}
	if !p.IsOnline() {
		return j, fmt.Errorf("%w: %d (%s)", ErrPrinterOffline, p.ID, p.Name)
	}
	j.printer = p
	j.attrs.PrinterID = p.ID
	return j, nil
}

func (j *Job) Printer() *Printer {
	return j.printer
}

// Attributes returns a copy of the job's serialized attributes.
func (j *Job) Attributes() Attributes {
	return j.attrs.clone()
}

func (j *Job) Quantity() int {
	return j.attrs.Qty
}

func (j *Job) Options() Options {
	return j.attrs.Options.Clone()
}

// Overflow returns the job holding the remainder copies produced by the last
// validation, or nil. It is never submitted automatically.
func (j *Job) Overflow() *Job {
	return j.overflow
}

func (j *Job) clone() *Job {
	return &Job{
		svc:     j.svc,
		printer: j.printer,
		attrs:   j.attrs.clone(),
	}
}
