// Package http reads archives and archive manifests over HTTP.
//
// A Source gives random access to a remote archive through range requests,
// so its directory can be listed and single entries read without fetching
// the whole file. Fetch downloads a complete archive from servers without
// range support.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/core/internal/index"
	"github.com/meigma/pak/internal/sizing"
)

// DefaultMaxSize bounds downloads. Archive offsets are signed 32-bit.
const DefaultMaxSize = 1<<31 - 1

var (
	// ErrTooLarge is returned when a download exceeds the configured limit.
	ErrTooLarge = errors.New("http: content exceeds size limit")

	// ErrRangeUnsupported is returned when a server answers a range request
	// with the whole body.
	ErrRangeUnsupported = errors.New("http: range requests not supported")
)

type config struct {
	client      *nethttp.Client
	header      nethttp.Header
	maxSize     int64
	conditional bool
	sourceID    string
}

// Option configures a Source, Fetch and FetchManifest.
type Option func(*config)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithHeader sets a header on each request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.header.Set(key, value)
	}
}

// WithSourceID overrides the identifier derived from the URL and its
// validators.
func WithSourceID(id string) Option {
	return func(c *config) {
		c.sourceID = id
	}
}

// WithMaxSize limits the bytes a download may return (default
// DefaultMaxSize).
func WithMaxSize(n int64) Option {
	return func(c *config) {
		c.maxSize = n
	}
}

// WithConditionalHeaders sends If-Match or If-Unmodified-Since on range
// reads so a changed archive is noticed. A server that rejects them with
// 412 is retried without.
func WithConditionalHeaders() Option {
	return func(c *config) {
		c.conditional = true
	}
}

func newConfig(opts []Option) config {
	c := config{header: nethttp.Header{}, maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&c)
	}
	if c.client == nil {
		c.client = nethttp.DefaultClient
	}
	return c
}

// Source implements random access reads via HTTP range requests.
type Source struct {
	url          string
	cfg          config
	size         int64
	etag         string
	lastModified string
}

// NewSource checks url with a one-byte range request to learn its size
// and validators.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{url: url, cfg: newConfig(opts)}

	resp, err := s.get(ctx, "bytes=0-0", false)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return nil, fmt.Errorf("%w: %s", ErrRangeUnsupported, url)
	default:
		return nil, fmt.Errorf("probing %s: %s", url, resp.Status)
	}

	size, err := totalFromContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", url, err)
	}
	if size > s.cfg.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, url, size)
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return s, nil
}

// URL returns the remote location.
func (s *Source) URL() string {
	return s.url
}

// Size returns the total size of the remote archive.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies this revision of the remote content.
func (s *Source) SourceID() string {
	switch {
	case s.cfg.sourceID != "":
		return s.cfg.sourceID
	case s.etag != "":
		return "url:" + s.url + "|etag:" + s.etag
	case s.lastModified != "":
		return fmt.Sprintf("url:%s|mod:%s|size:%d", s.url, s.lastModified, s.size)
	default:
		return fmt.Sprintf("url:%s|size:%d", s.url, s.size)
	}
}

// Directory reads the archive header and directory with two range requests
// and returns the entries sorted by name.
func (s *Source) Directory(ctx context.Context) ([]pak.Entry, error) {
	header, err := s.read(ctx, 0, index.HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", s.url, err)
	}
	off, length, err := index.ParseHeader(header, s.size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.url, err)
	}
	dir, err := s.read(ctx, off, length)
	if err != nil {
		return nil, fmt.Errorf("reading directory of %s: %w", s.url, err)
	}
	idx, err := index.ParseDirectory(dir, s.size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.url, err)
	}

	entries := make([]pak.Entry, 0, idx.Len())
	for e := range idx.Entries() {
		entries = append(entries, e)
	}
	return entries, nil
}

// ReadEntry fetches the content of one entry.
func (s *Source) ReadEntry(ctx context.Context, e pak.Entry) ([]byte, error) {
	if !sizing.InRange(e.Offset, e.Length, s.size) {
		return nil, fmt.Errorf("%w: %q [%d,+%d) outside %d byte archive", pak.ErrSizeOverflow, e.Name, e.Offset, e.Length, s.size)
	}
	return s.read(ctx, int64(e.Offset), int64(e.Length))
}

// Fetch downloads the whole archive with one range request.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	return s.read(ctx, 0, s.size)
}

// ReadAt implements io.ReaderAt. A read that reaches the end of the
// archive returns the bytes available with io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= s.size {
		return 0, io.EOF
	}
	n := min(int64(len(p)), s.size-off)
	data, err := s.read(context.Background(), off, n)
	copied := copy(p, data)
	if err != nil {
		return copied, err
	}
	if copied < len(p) {
		return copied, io.EOF
	}
	return copied, nil
}

// read returns exactly n bytes starting at off.
func (s *Source) read(ctx context.Context, off, n int64) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("read [%d,+%d): negative range", off, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	byteRange := fmt.Sprintf("bytes=%d-%d", off, off+n-1)

	resp, err := s.get(ctx, byteRange, s.cfg.conditional)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusPreconditionFailed && s.cfg.conditional {
		drain(resp.Body)
		if resp, err = s.get(ctx, byteRange, false); err != nil {
			return nil, err
		}
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return nil, io.EOF
	case nethttp.StatusOK:
		return nil, fmt.Errorf("%w: %s", ErrRangeUnsupported, s.url)
	default:
		return nil, fmt.Errorf("range request %s: %s", byteRange, resp.Status)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, fmt.Errorf("range request %s: %w", byteRange, err)
	}
	return buf, nil
}

// get issues a GET, with a Range header when byteRange is set.
func (s *Source) get(ctx context.Context, byteRange string, conditional bool) (*nethttp.Response, error) {
	req, err := s.cfg.request(ctx, s.url)
	if err != nil {
		return nil, err
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	if conditional {
		if s.etag != "" {
			req.Header.Set("If-Match", s.etag)
		} else if s.lastModified != "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return s.cfg.client.Do(req)
}

func (c *config) request(ctx context.Context, url string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header = c.header.Clone()
	if req.Header.Get("Accept-Encoding") == "" {
		// Compressed transfer would break byte offsets.
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// Fetch downloads url with a plain GET. It works against servers without
// range support and fails with ErrTooLarge past the size limit.
func Fetch(ctx context.Context, url string, opts ...Option) ([]byte, error) {
	cfg := newConfig(opts)
	req, err := cfg.request(ctx, url)
	if err != nil {
		return nil, err
	}
	resp, err := cfg.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	if resp.ContentLength > cfg.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, url, resp.ContentLength)
	}
	data, err := sizing.ReadAtMost(resp.Body, cfg.maxSize, ErrTooLarge)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	return data, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body) //nolint:errcheck // keeps the connection reusable
	_ = body.Close()
}

// totalFromContentRange returns the complete length from a Content-Range
// value such as "bytes 0-0/1234".
func totalFromContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
