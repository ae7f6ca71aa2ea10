package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"

	"golang.org/x/image/tiff"
)

// DecodeKind classifies why an image could not be decoded
type DecodeKind int

const (
	// KindTruncated means the data ends before the image is complete
	KindTruncated DecodeKind = iota
	// KindInvalidSignature means the file does not start like any known image format
	KindInvalidSignature
	// KindMalformed means the codec recognised the format but rejected its contents
	KindMalformed
	// KindUnsupported means the data uses a feature the codec does not implement
	KindUnsupported
	// KindUnreadable means the file could not be read (permissions, vanished, I/O)
	KindUnreadable
	// KindOther covers everything that does not fit the kinds above
	KindOther
)

func (k DecodeKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindInvalidSignature:
		return "invalid signature"
	case KindMalformed:
		return "malformed"
	case KindUnsupported:
		return "unsupported"
	case KindUnreadable:
		return "unreadable"
	default:
		return "other"
	}
}

// Deletable reports whether the kind means the data itself is unrecoverable
func (k DecodeKind) Deletable() bool {
	switch k {
	case KindTruncated, KindInvalidSignature, KindMalformed:
		return true
	default:
		return false
	}
}

// DecodeError is returned by decoders and Processor.Process
type DecodeError struct {
	Path string
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Deletable reports whether triage may remove the source file
func (e *DecodeError) Deletable() bool { return e.Kind.Deletable() }

// ErrNoDecoder is wrapped when no decoder is registered for a file's extension
var ErrNoDecoder = errors.New("no decoder registered for extension")

// Codec errors that image/jpeg and image/png return when the data stops early
const (
	jpegShortHuffmanData = jpeg.FormatError("short Huffman data")
	pngNotEnoughPixels   = png.FormatError("not enough pixel data")
	pngUnexpectedEOF     = png.FormatError("unexpected EOF")
)

// classifyReadError maps a failure to open or read the file
func classifyReadError(err error) DecodeKind {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrNotExist):
		return KindUnreadable
	default:
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return KindUnreadable
		}
		return KindOther
	}
}

// classifyDecodeError maps a codec error onto a DecodeKind using the typed
// errors exposed by the codecs.
func classifyDecodeError(err error) DecodeKind {
	var (
		jpegFormat jpeg.FormatError
		jpegUnsup  jpeg.UnsupportedError
		pngFormat  png.FormatError
		pngUnsup   png.UnsupportedError
		tiffFormat tiff.FormatError
		tiffUnsup  tiff.UnsupportedError
	)

	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindTruncated
	case errors.Is(err, image.ErrFormat):
		return KindInvalidSignature
	case errors.As(err, &jpegFormat):
		if jpegFormat == jpegShortHuffmanData {
			return KindTruncated
		}
		return KindMalformed
	case errors.As(err, &pngFormat):
		if pngFormat == pngNotEnoughPixels || pngFormat == pngUnexpectedEOF {
			return KindTruncated
		}
		return KindMalformed
	case errors.As(err, &tiffFormat):
		return KindMalformed
	case errors.As(err, &jpegUnsup), errors.As(err, &pngUnsup), errors.As(err, &tiffUnsup):
		return KindUnsupported
	default:
		return KindOther
	}
}

// knownSignatures are the leading bytes of every format in formatExtensions
var knownSignatures = []struct {
	format FormatType
	magic  []byte
}{
	{FormatJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{FormatPNG, []byte("\x89PNG\r\n\x1a\n")},
	{FormatGIF, []byte("GIF8")},
	{FormatBMP, []byte("BM")},
	{FormatTIFF, []byte("II*\x00")},
	{FormatTIFF, []byte("MM\x00*")},
	{FormatWEBP, []byte("RIFF")},
}

// sniffFormat returns the format announced by data's leading bytes
func sniffFormat(data []byte) FormatType {
	for _, sig := range knownSignatures {
		if !bytes.HasPrefix(data, sig.magic) {
			continue
		}
		if sig.format == FormatWEBP && (len(data) < 12 || string(data[8:12]) != "WEBP") {
			continue
		}
		return sig.format
	}
	return FormatUnknown
}

// sniffKind inspects raw bytes for the two failures that can be recognised
// without a codec: an unknown signature and a missing end marker. ok is false
// when the bytes look like a complete file of a known format.
func sniffKind(data []byte) (kind DecodeKind, ok bool) {
	switch sniffFormat(data) {
	case FormatUnknown:
		return KindInvalidSignature, true
	case FormatJPEG:
		if !hasJPEGEnd(data) {
			return KindTruncated, true
		}
	case FormatPNG:
		if !bytes.Contains(data[max(0, len(data)-16):], []byte("IEND")) {
			return KindTruncated, true
		}
	case FormatGIF:
		if !bytes.HasSuffix(data, []byte{0x3B}) {
			return KindTruncated, true
		}
	}
	return KindOther, false
}

// hasJPEGEnd reports whether data ends with the JPEG end-of-image marker,
// ignoring trailing NUL padding
func hasJPEGEnd(data []byte) bool {
	return bytes.HasSuffix(bytes.TrimRight(data, "\x00"), jpegEnd)
}

var jpegEnd = []byte{0xFF, 0xD9}

// classifyUndecodable picks the kind for bytes a codec refused without saying
// why. Only damage visible in the bytes makes the file deletable; anything
// else is treated as a codec limitation.
func classifyUndecodable(data []byte) DecodeKind {
	if kind, ok := sniffKind(data); ok {
		return kind
	}
	return KindUnsupported
}
