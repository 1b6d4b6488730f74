package httpmodel

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// Encoding tags how Payload.EncodedValue should be interpreted.
type Encoding string

const (
	EncodingText     Encoding = "text"
	EncodingBinary   Encoding = "binary"
	EncodingGzipped  Encoding = "gzipped"
	gzipFloor                 = 4096
)

// Payload is the serialized form of a request or response body, per
// the encoding rules: textual + valid UTF-8 bodies are
// stored as text (gzipped instead, base64-encoded, when that's at
// least 4096 bytes and gzip actually shrinks it); everything else is
// base64-encoded as binary.
type Payload struct {
	Encoding     Encoding
	EncodedValue string
	Charset      string
}

// EncodePayload builds a Payload from raw bytes and the body's MIME
// type (the portion of Content-Type before any ";" parameters).
func EncodePayload(raw []byte, mimeType, charset string) *Payload {
	if isTextualMime(mimeType) && utf8.Valid(raw) {
		if len(raw) >= gzipFloor {
			if gz, ok := tryGzip(raw); ok {
				return &Payload{
					Encoding:     EncodingGzipped,
					EncodedValue: base64.StdEncoding.EncodeToString(gz),
					Charset:      charset,
				}
			}
		}
		return &Payload{
			Encoding:     EncodingText,
			EncodedValue: string(raw),
			Charset:      charset,
		}
	}
	return &Payload{
		Encoding:     EncodingBinary,
		EncodedValue: base64.StdEncoding.EncodeToString(raw),
	}
}

// Decode reverses EncodePayload, returning the original raw bytes.
func (p *Payload) Decode() ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	switch p.Encoding {
	case EncodingText:
		return []byte(p.EncodedValue), nil
	case EncodingBinary:
		return base64.StdEncoding.DecodeString(p.EncodedValue)
	case EncodingGzipped:
		gz, err := base64.StdEncoding.DecodeString(p.EncodedValue)
		if err != nil {
			return nil, err
		}
		return gunzip(gz)
	default:
		return nil, fmt.Errorf("httpmodel: unknown payload encoding %q", p.Encoding)
	}
}

// ToWire converts a Payload to its JSON wire representation.
func (p *Payload) ToWire() WirePayload {
	return WirePayload{
		Encoding: string(p.Encoding),
		Value:    p.EncodedValue,
		Charset:  p.Charset,
	}
}

// WirePayload is the JSON wire shape for Payload's body field.
type WirePayload struct {
	Encoding string `json:"encoding"`
	Value    string `json:"value"`
	Charset  string `json:"charset,omitempty"`
}

func isTextualMime(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/javascript":
		return true
	}
	return false
}

// tryGzip compresses raw and reports ok only if the result is strictly
// smaller, matching the "if gzip shrinks it" rule.
func tryGzip(raw []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(raw) {
		return nil, false
	}
	return buf.Bytes(), true
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
