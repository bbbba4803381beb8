package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// decompress unwraps the Content-Encoding layers of body, last applied first.
func decompress(body io.Reader, contentEncoding string) (io.Reader, error) {
	encodings := strings.Split(contentEncoding, ",")
	reader := body
	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))
		var err error
		switch encoding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			reader, err = gzip.NewReader(reader)
		case "br":
			reader = brotli.NewReader(reader)
		case "deflate":
			reader, err = inflate(reader)
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", encoding)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", encoding, err)
		}
	}
	return reader, nil
}

// inflate handles both zlib-wrapped and raw deflate streams; servers send either.
func inflate(r io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(r)
	header, err := buffered.Peek(2)
	if err == nil && isZlibHeader(header) {
		return zlib.NewReader(buffered)
	}
	return flate.NewReader(buffered), nil
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

// toUTF8 converts body to UTF-8. The encoding comes from a BOM, then the
// Content-Type charset, then a <meta charset> declaration.
func toUTF8(body io.Reader, contentType string) (io.Reader, error) {
	return charset.NewReader(body, contentType)
}
