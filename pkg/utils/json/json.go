// Package json wraps bytedance/sonic behind the encoding/json call shapes.
// Sonic is used on amd64/arm64; other architectures fall back to encoding/json.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is re-exported so callers do not import encoding/json directly.
type RawMessage = stdjson.RawMessage

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v any) ([]byte, error)

	// MarshalIndent encodes v with the given prefix and indent.
	MarshalIndent func(v any, prefix, indent string) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v any) error

	// NewEncoder creates a JSON encoder writing to w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a JSON decoder reading from r.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder is a JSON encoder.
type Encoder interface {
	Encode(v any) error
}

// Decoder is a JSON decoder.
type Decoder interface {
	Decode(v any) error
}

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		useSonic(sonic.ConfigStd)
		return
	}

	Marshal = stdjson.Marshal
	MarshalIndent = stdjson.MarshalIndent
	Unmarshal = stdjson.Unmarshal
	NewEncoder = func(w io.Writer) Encoder { return stdjson.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return stdjson.NewDecoder(r) }
	usingSonic = false
}

// useSonic routes all helpers through the given sonic API.
// ConfigStd sorts map keys and escapes HTML like encoding/json.
func useSonic(api sonic.API) {
	Marshal = api.Marshal
	MarshalIndent = api.MarshalIndent
	Unmarshal = api.Unmarshal
	NewEncoder = func(w io.Writer) Encoder { return api.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return api.NewDecoder(r) }
	usingSonic = true
}

// IsUsingSonic reports whether sonic backs the helpers.
func IsUsingSonic() bool {
	return usingSonic
}
