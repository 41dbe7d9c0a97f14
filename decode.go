package fetchpipe

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/always-cache/fetchpipe/rfc9111"
)

// AcceptEncoding lists the content codings DecodingInterceptor can decode.
const AcceptEncoding = "gzip, deflate, br, zstd"

// DecodingInterceptor asks for compressed responses and decodes them.
// Register it last, so that it is the first to see responses.
type DecodingInterceptor struct{}

func NewDecodingInterceptor() *DecodingInterceptor {
	return &DecodingInterceptor{}
}

func (d *DecodingInterceptor) Name() string {
	return "decode"
}

func (d *DecodingInterceptor) PreRequest(req *Request) error {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if rfc9111.FieldAbsent(req.Header, "Accept-Encoding") {
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	return nil
}

func (d *DecodingInterceptor) ShouldBlock(*Request) bool {
	return false
}

// PostResponse decodes the body, undoing the codings in reverse order of
// application, and drops the Content-Encoding field.
func (d *DecodingInterceptor) PostResponse(res *Response) error {
	codings := rfc9111.GetListHeader(res.Header, "Content-Encoding")
	if len(codings) == 0 {
		return nil
	}
	body := res.Body
	for i := len(codings) - 1; i >= 0; i-- {
		decoded, err := decode(strings.ToLower(codings[i]), body)
		if err != nil {
			return errors.Wrapf(err, "could not decode %s body of %s", codings[i], res.URL)
		}
		body = decoded
	}
	res.Body = body
	for key := range res.Header {
		if strings.EqualFold(key, "Content-Encoding") || strings.EqualFold(key, "Content-Length") {
			delete(res.Header, key)
		}
	}
	res.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

func decode(coding string, body []byte) ([]byte, error) {
	switch coding {
	case "identity":
		return body, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		// servers disagree whether deflate means zlib or raw deflate
		if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer r.Close()
			return io.ReadAll(r)
		}
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, errors.Errorf("unsupported content coding %q", coding)
}
