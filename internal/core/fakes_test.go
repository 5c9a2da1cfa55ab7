package core

import (
	"context"
	"errors"
	"fmt"
)

var errNoSuchPrinter = errors.New("no such printer")

type fakeDirectory map[int64]*Printer

func (d fakeDirectory) Get(_ context.Context, id int64) (*Printer, error) {
	p, ok := d[id]
	if !ok {
		return nil, errNoSuchPrinter
	}
	return p, nil
}

type fakeStore map[string][]byte

func (s fakeStore) Read(_ context.Context, disk, path string) ([]byte, error) {
	data, ok := s[disk+":"+path]
	if !ok {
		return nil, fmt.Errorf("%s on %s: missing", path, disk)
	}
	return data, nil
}

type post struct {
	path string
	body Attributes
}

type fakeBackend struct {
	posts []post
	err   error
}

func (b *fakeBackend) Post(_ context.Context, path string, body any) (*Response, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.posts = append(b.posts, post{path: path, body: body.(Attributes)})
	return &Response{StatusCode: 201, Body: []byte(fmt.Sprintf("%d", len(b.posts)))}, nil
}

func testCaps() Capabilities {
	return Capabilities{
		MaxCopies: 7,
		Papers:    map[string][]int{"A4": {2100, 2970}, "Letter": {2159, 2794}},
		Medias:    []string{"plain", "glossy"},
		DPIs:      []string{"300x300", "600x600"},
		Color:     false,
	}
}

func newTestService(backend *fakeBackend, opts ...ServiceOption) *Service {
	dir := fakeDirectory{
		1: NewPrinter(1, "front-desk", true, testCaps()),
		2: NewPrinter(2, "basement", false, testCaps()),
	}
	store := fakeStore{"local:docs/invoice.pdf": []byte("%PDF-1.4")}
	return NewService(dir, store, backend, opts...)
}
