package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	pakhttp "github.com/meigma/pak/core/http"
)

// newHTTPSource opens cfg.dataURL as a range-read source. The URL "local"
// serves data from an in-process server; the returned func stops it.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPSource(ctx context.Context, cfg config, data []byte) (*pakhttp.Source, func(), error) {
	if cfg.dataURL == "" {
		return nil, nil, errors.New("data-url is required for HTTP modes")
	}

	url, stop := cfg.dataURL, func() {}
	if url == "local" {
		srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			nethttp.ServeContent(w, r, "pak0.pak", time.Time{}, bytes.NewReader(data))
		}))
		url, stop = srv.URL+"/pak0.pak", srv.Close
	}

	client := &nethttp.Client{Transport: shapedTransport(cfg.dataHTTPLatency, cfg.dataHTTPBPS)}
	src, err := pakhttp.NewSource(ctx, url, pakhttp.WithClient(client))
	if err != nil {
		stop()
		return nil, nil, err
	}
	return src, stop, nil
}

// shapedTransport delays each request by latency and caps response
// bodies at bytesPerSecond. Zero disables either.
func shapedTransport(latency time.Duration, bytesPerSecond int64) nethttp.RoundTripper {
	base := nethttp.DefaultTransport.(*nethttp.Transport).Clone() //nolint:forcetypeassert // stdlib default
	if latency <= 0 && bytesPerSecond <= 0 {
		return base
	}
	return roundTripFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
		if latency > 0 {
			t := time.NewTimer(latency)
			select {
			case <-t.C:
			case <-req.Context().Done():
				t.Stop()
				return nil, req.Context().Err()
			}
		}
		resp, err := base.RoundTrip(req)
		if err != nil || bytesPerSecond <= 0 {
			return resp, err
		}
		burst := int(min(bytesPerSecond, 64<<10))
		resp.Body = &limitedBody{
			ReadCloser: resp.Body,
			ctx:        req.Context(),
			limiter:    rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
			burst:      burst,
		}
		return resp, nil
	})
}

type roundTripFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

// limitedBody paces reads through a token bucket of one token per byte.
type limitedBody struct {
	io.ReadCloser
	ctx     context.Context
	limiter *rate.Limiter
	burst   int
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if len(p) > b.burst {
		p = p[:b.burst]
	}
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		if werr := b.limiter.WaitN(b.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// parseBytesPerSecond parses values such as "512", "64k", "10MBps" or
// "1g/s". Units are binary.
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	text = strings.TrimSuffix(strings.TrimSuffix(text, "/s"), "ps")
	text = strings.TrimSuffix(text, "b")

	shift := 0
	if text != "" {
		switch text[len(text)-1] {
		case 'k':
			shift = 10
		case 'm':
			shift = 20
		case 'g':
			shift = 30
		}
		if shift > 0 {
			text = text[:len(text)-1]
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return n << shift, nil
}
