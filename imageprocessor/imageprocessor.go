package imageprocessor

import (
	"fmt"
	"runtime/debug"

	"imagededup/logging"
	"imagededup/types"
)

// Processor runs decode then hash for one file
type Processor struct {
	registry *DecoderRegistry
	hasher   *Hasher
}

// NewProcessor creates a Processor using the given decoder backend and hash size
func NewProcessor(backend Backend, hashSize int) (*Processor, error) {
	registry, err := NewDecoderRegistry(backend)
	if err != nil {
		return nil, err
	}
	hasher, err := NewHasher(hashSize)
	if err != nil {
		return nil, err
	}
	return &Processor{registry: registry, hasher: hasher}, nil
}

// Registry exposes the decoder registry so callers can register extra decoders
func (p *Processor) Registry() *DecoderRegistry { return p.registry }

// Process decodes path and returns its fingerprint. On failure the error is a
// *DecodeError. Process never modifies the file system.
func (p *Processor) Process(path string) (fp types.Fingerprint, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Panic while processing %s: %v\n%s", path, r, debug.Stack())
			fp = ""
			err = &DecodeError{Path: path, Kind: KindOther, Err: fmt.Errorf("panic during decode: %v", r)}
		}
	}()

	img, err := p.registry.Decode(path)
	if err != nil {
		return "", err
	}

	fp, err = p.hasher.Hash(img)
	if err != nil {
		return "", &DecodeError{Path: path, Kind: KindOther, Err: err}
	}
	return fp, nil
}
