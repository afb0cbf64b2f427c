// Package attachment wraps uploaded files as single-use streams.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
)

// ErrClosed is returned by reads from a stream after it has been closed.
var ErrClosed = errors.New("attachment: read after close")

// StreamAlreadyConsumedError is returned by Open once the stream has been
// handed out, or after the attachment has been released.
type StreamAlreadyConsumedError struct {
	Name string
}

func (e *StreamAlreadyConsumedError) Error() string {
	return fmt.Sprintf("attachment: stream for %q already consumed", e.Name)
}

// Attachment is an uploaded file bound to a named parameter. The metadata
// may be read any number of times; the content can be opened once.
//
// An Attachment is owned by the request that produced it and is not safe for
// concurrent use.
type Attachment struct {
	name        string
	fileName    string
	contentType string
	size        int64

	open     func() (io.ReadCloser, error)
	stream   *stream
	consumed bool
}

// FromFileHeader wraps a part of a parsed multipart form.
func FromFileHeader(name string, fh *multipart.FileHeader) *Attachment {
	return &Attachment{
		name:        name,
		fileName:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		size:        fh.Size,
		open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// New wraps an arbitrary reader. If src is an io.Closer it is closed with
// the stream. A negative size means unknown.
func New(name, fileName, contentType string, size int64, src io.Reader) *Attachment {
	return &Attachment{
		name:        name,
		fileName:    fileName,
		contentType: contentType,
		size:        size,
		open: func() (io.ReadCloser, error) {
			if rc, ok := src.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(src), nil
		},
	}
}

// Name returns the form field the attachment was submitted under.
func (a *Attachment) Name() string { return a.name }

// FileName returns the client-supplied file name. It may be empty.
func (a *Attachment) FileName() string { return a.fileName }

// ContentType returns the content type declared for the part.
func (a *Attachment) ContentType() string { return a.contentType }

// Size returns the content length in bytes, or -1 if unknown.
func (a *Attachment) Size() int64 { return a.size }

// Open returns the content stream. It succeeds at most once; the caller
// must close the stream.
func (a *Attachment) Open() (io.ReadCloser, error) {
	if a.consumed {
		return nil, &StreamAlreadyConsumedError{Name: a.name}
	}
	a.consumed = true
	rc, err := a.open()
	if err != nil {
		return nil, fmt.Errorf("attachment: open %q: %w", a.name, err)
	}
	a.stream = &stream{rc: rc}
	return a.stream, nil
}

// Use opens the stream, passes it to fn and closes it, whatever fn returns.
func (a *Attachment) Use(fn func(r io.Reader) error) (err error) {
	rc, err := a.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(rc)
}

// Release closes the stream if it was opened and left open, and prevents
// further opens. It is safe to call more than once.
func (a *Attachment) Release() error {
	a.consumed = true
	if a.stream != nil {
		return a.stream.Close()
	}
	return nil
}

// PropertyNames implements value.Properties. The content is not exposed.
func (a *Attachment) PropertyNames() []string {
	return []string{"name", "fileName", "contentType", "size"}
}

// Property implements value.Properties.
func (a *Attachment) Property(name string) (any, error) {
	switch name {
	case "name":
		return a.name, nil
	case "fileName":
		return a.fileName, nil
	case "contentType":
		return a.contentType, nil
	case "size":
		return a.size, nil
	}
	return nil, nil
}

type stream struct {
	rc     io.ReadCloser
	closed bool
}

func (s *stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.rc.Read(p)
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rc.Close()
}

// ReleaseAll releases every attachment and returns the first error.
func ReleaseAll(as []*Attachment) error {
	var first error
	for _, a := range as {
		if err := a.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
