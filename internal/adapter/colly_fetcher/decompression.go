package colly_fetcher

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly"
)

// decompress decodes the body in place when the server compressed it
// and the transport left it encoded.
func decompress(r *colly.Response) error {
	if r == nil || len(r.Body) == 0 {
		return nil
	}

	var reader io.Reader
	encoding := strings.ToLower(strings.TrimSpace(r.Headers.Get("Content-Encoding")))
	switch {
	case len(r.Body) >= 2 && r.Body[0] == 0x1f && r.Body[1] == 0x8b:
		gz, err := gzip.NewReader(bytes.NewReader(r.Body))
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	case encoding == "br":
		reader = brotli.NewReader(bytes.NewReader(r.Body))
	case encoding == "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(r.Body))
		if err != nil {
			return err
		}
		defer zr.Close()
		reader = zr
	default:
		return nil
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}
