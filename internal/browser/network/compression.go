// Package network provides the HTTP stack of the static page engine:
// transparent response decompression, an in-flight request tracker with
// network-idle detection, and a politeness-limited client factory.
package network

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipReaderPool = sync.Pool{
		New: func() any { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() any { return brotli.NewReader(nil) },
	}
)

var emptyReader = strings.NewReader("")

// CompressionMiddleware advertises br/gzip/deflate on outgoing requests
// and decompresses responses transparently. Readers are pooled.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}
	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("initializing response decompression: %w", err)
	}
	return resp, nil
}

func decompressResponse(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return nil
	case "gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(resp.Body); err != nil {
			gzipReaderPool.Put(zr)
			return err
		}
		resp.Body = &pooledBody{reader: zr, underlying: resp.Body, release: func() {
			_ = zr.Reset(emptyReader)
			gzipReaderPool.Put(zr)
		}}
	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliReaderPool.Put(br)
			return err
		}
		resp.Body = &pooledBody{reader: br, underlying: resp.Body, release: func() {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
		}}
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		resp.Body = &deflateBody{underlying: resp.Body}
	default:
		// Unknown encoding: hand the raw body through rather than failing
		// the whole response.
		return nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type pooledBody struct {
	reader     io.Reader
	underlying io.ReadCloser
	release    func()
	closed     bool
}

func (b *pooledBody) Read(p []byte) (int, error) { return b.reader.Read(p) }

func (b *pooledBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.release != nil {
		b.release()
	}
	return b.underlying.Close()
}

// deflateBody lazily picks zlib or raw deflate on first read.
type deflateBody struct {
	underlying io.ReadCloser
	reader     io.ReadCloser
}

func (b *deflateBody) Read(p []byte) (int, error) {
	if b.reader == nil {
		buffered := &peekReader{source: b.underlying}
		head, err := buffered.peek(2)
		if err != nil && len(head) == 0 {
			return 0, err
		}
		// zlib streams start with 0x78.
		if len(head) > 0 && head[0] == 0x78 {
			zr, err := zlib.NewReader(buffered)
			if err != nil {
				return 0, err
			}
			b.reader = zr
		} else {
			b.reader = flate.NewReader(buffered)
		}
	}
	return b.reader.Read(p)
}

func (b *deflateBody) Close() error {
	if b.reader != nil {
		_ = b.reader.Close()
	}
	return b.underlying.Close()
}

// peekReader buffers a small prefix so encoding sniffing does not consume
// stream bytes.
type peekReader struct {
	source io.Reader
	buf    []byte
}

func (r *peekReader) peek(n int) ([]byte, error) {
	for len(r.buf) < n {
		chunk := make([]byte, n-len(r.buf))
		read, err := r.source.Read(chunk)
		r.buf = append(r.buf, chunk[:read]...)
		if err != nil {
			return r.buf, err
		}
	}
	return r.buf[:n], nil
}

func (r *peekReader) Read(p []byte) (int, error) {
	if len(r.buf) > 0 {
		n := copy(p, r.buf)
		r.buf = r.buf[n:]
		return n, nil
	}
	return r.source.Read(p)
}
