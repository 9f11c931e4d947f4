// Package client implements spec.md §4.6–§4.7: the per-worker transfer
// multiplexer and the round-robin dispatcher across workers.
//
// The original system drives a libcurl multi-handle from a
// boost::asio reactor via explicit socket adoption (open/close hooks,
// "socket action" calls). Go's goroutines make that inversion
// unnecessary: each worker's goroutine performs its own blocking
// dial/write/read directly, and concurrency across transfers comes from
// running N worker goroutines rather than multiplexing many transfers
// inside one. This is the Go-native reading of spec.md §5's "each client
// worker runs a single thread over its own reactor" — here "reactor" is
// simply "this goroutine's blocking I/O calls", since nothing else needs
// to share the thread.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/cachecontrol"
	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/dnscache"
	"github.com/coralreef/httpengine/herrors"
	"github.com/coralreef/httpengine/httpdate"
)

// Dialer is the minimal network surface a transfer needs; *net.Dialer
// satisfies it, tests supply a fake.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// transferResult is what completes to a Sink at the end of one HTTP
// exchange (before redirect following is applied).
type transferResult struct {
	status       int
	effectiveURL string
	contentType  string
	lastModified int64
	cacheControl cachecontrol.Directives
	expiresHdr   string
	body         []byte
}

// doTransfer performs one HTTP/1.1 request/response exchange against
// rawURL and returns the parsed result, or a transport error.
func doTransfer(ctx context.Context, dialer Dialer, cache *dnscache.Cache, rawURL string, opts Options, log *zap.SugaredLogger) (*transferResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, herrors.Transport("invalid url: "+err.Error(), "url_parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, herrors.Transport("unsupported scheme: "+u.Scheme, "scheme")
	}

	host := u.Hostname()
	explicitPort := u.Port()
	port := explicitPort
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	conn, err := dial(ctx, dialer, cache, host, explicitPort, port)
	if err != nil {
		return nil, herrors.Transport("dial failed: "+err.Error(), "dial")
	}
	defer conn.Close()

	if err := writeRequest(conn, u, opts); err != nil {
		return nil, herrors.Transport("write failed: "+err.Error(), "write")
	}

	reader := bufio.NewReader(conn)
	result, err := readResponse(reader, u)
	if err != nil {
		return nil, herrors.Transport("read failed: "+err.Error(), "read")
	}
	return result, nil
}

// dial connects to host:port, resolving host through cache if supplied.
// explicitPort is the port as written in the URL ("" when the URL named
// none, e.g. "http://example.com/"); the cache key uses the bare host in
// that case and "host:port" only when the caller actually wrote a port,
// per original_source/http/detail/dnscache.hpp's "host or host:port"
// keying — a default port synthesized for dialing must not collapse
// distinct host/host:port cache entries into one.
func dial(ctx context.Context, dialer Dialer, cache *dnscache.Cache, host, explicitPort, port string) (net.Conn, error) {
	if cache == nil {
		return dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	}

	key := host
	if explicitPort != "" {
		key = host + ":" + explicitPort
	}
	type result struct {
		eps []dnscache.Endpoint
		err error
	}
	resCh := make(chan result, 1)
	cache.Lookup(ctx, key, host, func(eps []dnscache.Endpoint, err error) {
		resCh <- result{eps, err}
	})
	res := <-resCh
	if res.err != nil {
		return nil, res.err
	}
	if len(res.eps) == 0 {
		return dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	}
	return dialer.DialContext(ctx, "tcp", net.JoinHostPort(res.eps[0].IP.String(), port))
}

func writeRequest(w io.Writer, u *url.URL, opts Options) error {
	path := u.RequestURI()
	var b strings.Builder
	b.WriteString("GET " + path + " HTTP/1.1\r\n")
	b.WriteString("Host: " + u.Host + "\r\n")
	if opts.UserAgent != "" {
		b.WriteString("User-Agent: " + opts.UserAgent + "\r\n")
	}
	if opts.LastModified >= 0 {
		b.WriteString("If-Modified-Since: " + httpdate.Format(opts.LastModified) + "\r\n")
	}
	b.WriteString("Connection: close\r\n\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// readResponse parses the status line, then header lines one at a time
// (each terminated by CRLF; a line of length <= 2 signals end-of-headers;
// leading-whitespace lines are folded continuations), per spec.md §4.6.
func readResponse(r *bufio.Reader, u *url.URL) (*transferResult, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return nil, err
	}
	status, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	res := &transferResult{status: status, effectiveURL: u.String(), lastModified: datasource.LastModifiedUnset}
	var lastName, lastValue string
	flush := func() {
		if lastName == "" {
			return
		}
		processHeader(res, u, lastName, lastValue)
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if len(line) <= 2 {
			flush()
			break
		}
		if len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t') {
			lastValue += " " + strings.TrimSpace(trimmed)
			continue
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue // non-whitespace line without ':' is discarded, per spec.md §4.6
		}
		flush()
		lastName, lastValue = strings.TrimSpace(name), strings.TrimSpace(value)
	}

	if res.contentType == "" {
		res.contentType = "application/octet-stream"
	}

	body, err := io.ReadAll(r)
	if err != nil && err != io.EOF {
		return nil, err
	}
	res.body = body
	return res, nil
}

// processHeader folds one response header into res. A Location header is
// resolved against the request URL (u) per RFC 7231 §7.1.2, so a relative
// reference like "/final" redirects within the same origin instead of
// being treated as a literal (and unparseable) next-hop URL.
func processHeader(res *transferResult, u *url.URL, name, value string) {
	switch strings.ToLower(name) {
	case "content-type":
		res.contentType = value
	case "last-modified":
		if ts, err := httpdate.Parse(value); err == nil {
			res.lastModified = ts
		}
	case "cache-control":
		res.cacheControl = cachecontrol.Parse(value)
	case "expires":
		res.expiresHdr = value
	case "location":
		if rel, err := url.Parse(value); err == nil {
			res.effectiveURL = u.ResolveReference(rel).String()
		} else {
			res.effectiveURL = value
		}
	}
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed status line: %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code: %q", parts[1])
	}
	return code, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// computedExpires derives the expires sentinel per spec.md §4.6: maxAge
// if the Cache-Control header specified one, else a parsed Expires
// header, else Unspecified.
func (res *transferResult) computedExpires() int64 {
	if res.cacheControl.MaxAge != cachecontrol.Unspecified {
		return res.cacheControl.MaxAge
	}
	if res.expiresHdr != "" {
		if ts, err := httpdate.Parse(res.expiresHdr); err == nil {
			return ts
		}
	}
	return datasource.CacheUnspecified
}

// dispatch turns a completed transferResult into the appropriate Sink
// call, per spec.md §4.6's completion-dispatch table, or follows a
// redirect when requested.
func dispatch(ctx context.Context, dialer Dialer, cache *dnscache.Cache, res *transferResult, opts Options, redirectsLeft int, sink Sink, log *zap.SugaredLogger) {
	switch {
	case res.status >= 200 && res.status < 300:
		sink.Content(res.body, datasource.FileInfo{
			ContentType:  res.contentType,
			LastModified: res.lastModified,
			Expires:      res.computedExpires(),
		})
	case res.status == 304:
		sink.NotModified()
	case res.status >= 300 && res.status < 400:
		if !opts.FollowRedirects || redirectsLeft <= 0 {
			sink.SeeOther(res.effectiveURL)
			return
		}
		next, err := doTransfer(ctx, dialer, cache, res.effectiveURL, opts, log)
		if err != nil {
			sink.Error(err)
			return
		}
		dispatch(ctx, dialer, cache, next, opts, redirectsLeft-1, sink, log)
	case res.status == 404:
		sink.Error(herrors.FromStatus(404))
	case res.status == 405:
		sink.Error(herrors.FromStatus(405))
	case res.status == 503:
		sink.Error(herrors.FromStatus(503))
	default:
		sink.Error(herrors.FromStatus(res.status))
	}
}
