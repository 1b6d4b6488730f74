// Package responsereader streams an HTTP response body cooperatively,
// enforcing a hard size ceiling and extracting charset.
package responsereader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/asyncreq/engine/internal/httpmodel"
)

// chunkSize is the read buffer size used while streaming the body,
// giving the shutdown check (step 4 of the algorithm) a chance to run
// between chunks rather than blocking on one giant Read.
const chunkSize = 32 * 1024

var charsetPattern = regexp.MustCompile(`(?i);\s*charset\s*=\s*([^;\s]+)`)

// ShuttingDown is polled between chunks; when it returns true the read
// is aborted early and Read returns (nil, "", "", nil) — the caller
// treats this as the shutdown path, not an error.
type ShuttingDown func() bool

// Read streams resp.Body under maxResponseSize, returning the raw
// bytes and extracted MIME type/charset for httpmodel.EncodePayload.
// The body is always closed before Read returns, on every exit path.
func Read(ctx context.Context, resp *http.Response, maxResponseSize int64, shuttingDown ShuttingDown, correlationID string, callbackArgs map[string]any) ([]byte, string, string, *httpmodel.Error) {
	defer resp.Body.Close()

	if resp.ContentLength > 0 && resp.ContentLength > maxResponseSize {
		return nil, "", "", httpmodel.NewResponseTooLargeError(correlationID, resp.Request.URL.String(), httpmodel.Method(resp.Request.Method), callbackArgs)
	}

	var buf []byte
	chunk := make([]byte, chunkSize)
	var total int64
	for {
		if shuttingDown != nil && shuttingDown() {
			return nil, "", "", nil
		}
		select {
		case <-ctx.Done():
			return nil, "", "", nil
		default:
		}

		n, err := resp.Body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > maxResponseSize {
				return nil, "", "", httpmodel.NewResponseTooLargeError(correlationID, resp.Request.URL.String(), httpmodel.Method(resp.Request.Method), callbackArgs)
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", "", httpmodel.NewRequestError(correlationID, "unknown", "ResponseReader", err.Error(), 0, resp.Request.URL.String(), httpmodel.Method(resp.Request.Method), callbackArgs)
		}
	}

	contentType := resp.Header.Get("Content-Type")
	mimeType := mimeOf(contentType)
	charset := extractCharset(contentType)
	return buf, mimeType, charset, nil
}

// mimeOf returns the portion of a Content-Type header before any ";".
func mimeOf(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// extractCharset applies a case-insensitive charset= regexp to a
// Content-Type header value, stripping surrounding quotes.
func extractCharset(contentType string) string {
	m := charsetPattern.FindStringSubmatch(contentType)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], `"'`)
}

// ValidateCharset reports whether name is a charset Go's
// unicode/utf8-based text handling can make sense of. Unknown
// charsets are logged by the caller and left as raw bytes; an empty
// name is treated as the UTF-8 default.
func ValidateCharset(name string) error {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8", "ascii", "us-ascii":
		return nil
	default:
		return fmt.Errorf("responsereader: unsupported charset %q", name)
	}
}
