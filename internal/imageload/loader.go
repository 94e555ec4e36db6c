/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imageload resolves item URIs to decoded bitmaps: local blob URIs,
// files and remote http(s) sources with size limits, an optional private
// network guard and an optional persistent byte cache.
package imageload

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"

	applog "genstage/internal/log"
)

var (
	ErrUnsupportedScheme = errors.New("imageload: unsupported uri scheme")
	ErrTooLarge          = errors.New("imageload: image exceeds size limit")
	ErrBlockedHost       = errors.New("imageload: host resolves to a restricted network")
)

// Cache persists fetched bytes keyed by URI.
type Cache interface {
	Get(ctx context.Context, uri string) ([]byte, bool, error)
	Put(ctx context.Context, uri string, data []byte) error
}

// maxRedirects caps the hops followed for one image.
const maxRedirects = 5

// Options configures a Loader. Zero values take sensible defaults.
type Options struct {
	// HTTP performs remote fetches. When nil an httpkit client is built
	// over a transport that enforces the private network guard.
	HTTP httpkit.ClientInterface
	// Transport replaces the default dialing transport of the built client.
	Transport http.RoundTripper
	// Retries is the number of retries for transient remote failures.
	Retries           uint64
	Timeout           time.Duration
	MaxBytes          int64
	MaxDimension      int
	Token             string
	AllowPrivateHosts bool
	Blobs             *BlobStore
	Cache             Cache
	// LookupIP resolves host names for the private network guard.
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// Loader fetches and decodes bitmaps. It is safe for concurrent use.
type Loader struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Retries == 0 {
		opts.Retries = 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	if opts.LookupIP == nil {
		opts.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		}
	}
	l := &Loader{opts: opts, log: applog.WithComponent("imageload")}
	if l.opts.HTTP == nil {
		l.opts.HTTP = httpkit.New(opts.Timeout,
			httpkit.WithHTTPClient(l.guardedClient()),
			httpkit.WithSkipNetworkValidation(true),
			httpkit.WithMaxRetries(opts.Retries),
			httpkit.WithInitialInterval(250*time.Millisecond),
			httpkit.WithMaxInterval(2*time.Second),
		)
	}
	return l
}

// guardedClient re-checks every redirect hop and, unless private hosts are
// allowed, refuses connections to restricted addresses at dial time.
func (l *Loader) guardedClient() *http.Client {
	rt := l.opts.Transport
	if rt == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if !l.opts.AllowPrivateHosts {
			d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second, Control: dialGuard}
			tr.DialContext = d.DialContext
			tr.Proxy = nil
		}
		rt = tr
	}
	return &http.Client{
		Timeout:   l.opts.Timeout,
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if l.opts.AllowPrivateHosts {
				return nil
			}
			return l.checkHost(req.Context(), req.URL.String())
		},
	}
}

// dialGuard runs after name resolution, on the address actually dialled.
func dialGuard(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil && restricted(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
	}
	return nil
}

func restricted(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// Load returns the decoded bitmap behind uri, downscaled to MaxDimension.
func (l *Loader) Load(ctx context.Context, uri string) (image.Image, error) {
	data, err := l.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	img, format, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", redact(uri), err)
	}
	l.log.Debug("decoded", slog.String("uri", redact(uri)), slog.String("format", format),
		slog.Int("w", img.Bounds().Dx()), slog.Int("h", img.Bounds().Dy()))
	return Downscale(img, l.opts.MaxDimension), nil
}

// Fetch returns the raw bytes behind uri.
func (l *Loader) Fetch(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case IsBlob(uri):
		if l.opts.Blobs == nil {
			return nil, ErrRevoked
		}
		return l.opts.Blobs.Get(uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return l.fetchRemote(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", uri, err)
		}
		return l.readFile(filepath.FromSlash(u.Path))
	case !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "blob:") && !strings.HasPrefix(uri, "data:"):
		return l.readFile(uri)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, redact(uri))
}

func (l *Loader) readFile(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, st.Size())
	}
	return os.ReadFile(path)
}

func (l *Loader) fetchRemote(ctx context.Context, uri string) ([]byte, error) {
	if l.opts.Cache != nil {
		if b, ok, err := l.opts.Cache.Get(ctx, uri); err == nil && ok {
			return b, nil
		} else if err != nil {
			l.log.Warn("cache read failed", slog.String("error", err.Error()))
		}
	}
	if !l.opts.AllowPrivateHosts {
		if err := l.checkHost(ctx, uri); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()
	data, err := l.get(ctx, uri)
	if err != nil {
		var he *httpkit.NonRetryableHTTPError
		if errors.As(err, &he) {
			return nil, fmt.Errorf("get %s: http %d", redact(uri), he.StatusCode)
		}
		return nil, fmt.Errorf("get %s: %w", redact(uri), err)
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.opts.MaxBytes)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "application/octet-stream") {
		return nil, fmt.Errorf("get %s: unexpected content type %s", redact(uri), ct)
	}
	if l.opts.Cache != nil {
		if err := l.opts.Cache.Put(ctx, uri, data); err != nil {
			l.log.Warn("cache write failed", slog.String("error", err.Error()))
		}
	}
	return data, nil
}

// get fetches through the http kit. The bearer token needs a hand-built
// request; Go drops it again on redirects to another host.
func (l *Loader) get(ctx context.Context, uri string) ([]byte, error) {
	if l.opts.Token == "" {
		return l.opts.HTTP.FetchBytes(ctx, uri)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Authorization", "Bearer "+l.opts.Token)
	return l.opts.HTTP.DoRequest(req)
}

// checkHost rejects URLs whose host is, or resolves to, a private, loopback
// or link-local address.
func (l *Loader) checkHost(ctx context.Context, uri string) error {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return fmt.Errorf("parse %q: %w", redact(uri), err)
	}
	host := u.Hostname()
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = l.opts.LookupIP(ctx, host)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", host, err)
		}
	}
	if len(ips) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, ip := range ips {
		if restricted(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
		}
	}
	return nil
}

// redact strips query strings, which often carry signed credentials.
func redact(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i] + "?…"
	}
	return uri
}
