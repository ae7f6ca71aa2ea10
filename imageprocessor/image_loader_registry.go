package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"imagededup/logging"
)

// Decoder turns an image file into pixels. Failures are returned as *DecodeError.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// Backend selects the decoder implementation
type Backend string

const (
	BackendStandard Backend = "standard"
	BackendOpenCV   Backend = "opencv"
)

// newOpenCVDecoder is set when the binary is built with the opencv tag
var newOpenCVDecoder func() Decoder

// ParseBackend validates a backend name against what this binary supports
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendStandard:
		return BackendStandard, nil
	case BackendOpenCV:
		if newOpenCVDecoder == nil {
			return "", fmt.Errorf("decoder %q is not available: rebuild with -tags opencv", s)
		}
		return b, nil
	default:
		return "", fmt.Errorf("unknown decoder %q (want standard or opencv)", s)
	}
}

// StandardDecoder decodes with the pure Go codecs
type StandardDecoder struct {
	// AutoOrient applies the EXIF orientation tag after decoding
	AutoOrient bool
}

// Decode reads path and decodes it. Codec errors are classified into a DecodeKind.
func (d *StandardDecoder) Decode(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Kind: classifyReadError(err), Err: err}
	}

	img, err := d.decodeBytes(data)
	if err != nil && errors.Is(err, io.ErrUnexpectedEOF) && sniffFormat(data) == FormatJPEG && !hasJPEGEnd(data) {
		// Every scan was read; only the end-of-image marker is missing.
		if repaired, retryErr := d.decodeBytes(append(slices.Clip(data), jpegEnd...)); retryErr == nil {
			logging.DebugLog("Decoded %s without its end-of-image marker", path)
			return repaired, nil
		}
	}
	if err != nil {
		kind := classifyDecodeError(err)
		if kind == KindOther {
			if sniffed, ok := sniffKind(data); ok {
				kind = sniffed
			}
		}
		return nil, &DecodeError{Path: path, Kind: kind, Err: err}
	}
	return img, nil
}

func (d *StandardDecoder) decodeBytes(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(d.AutoOrient))
}

// DecoderRegistry maps lowercase extensions to decoders
type DecoderRegistry struct {
	decoders map[string]Decoder
	mutex    sync.RWMutex
}

// NewDecoderRegistry creates a registry with every supported extension mapped
// to the decoder of the given backend
func NewDecoderRegistry(backend Backend) (*DecoderRegistry, error) {
	backend, err := ParseBackend(string(backend))
	if err != nil {
		return nil, err
	}

	var decoder Decoder = &StandardDecoder{AutoOrient: true}
	if backend == BackendOpenCV {
		decoder = newOpenCVDecoder()
	}

	registry := &DecoderRegistry{decoders: make(map[string]Decoder)}
	for ext := range formatExtensions {
		registry.RegisterDecoder(ext, decoder)
	}
	return registry, nil
}

// RegisterDecoder registers decoder for ext, replacing any previous one
func (r *DecoderRegistry) RegisterDecoder(ext string, decoder Decoder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.decoders[strings.TrimPrefix(strings.ToLower(ext), ".")] = decoder
}

// DecoderFor returns the decoder registered for path's extension
func (r *DecoderRegistry) DecoderFor(path string) (Decoder, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	decoder, ok := r.decoders[extensionOf(path)]
	return decoder, ok
}

// Decode dispatches path to its registered decoder
func (r *DecoderRegistry) Decode(path string) (image.Image, error) {
	decoder, ok := r.DecoderFor(path)
	if !ok {
		return nil, &DecodeError{
			Path: path,
			Kind: KindUnsupported,
			Err:  fmt.Errorf("%w: %q", ErrNoDecoder, extensionOf(path)),
		}
	}
	return decoder.Decode(path)
}
