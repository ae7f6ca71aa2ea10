//go:build opencv

package imageprocessor

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

func init() {
	newOpenCVDecoder = func() Decoder { return &OpenCVDecoder{} }
}

// errEmptyMat is wrapped when OpenCV cannot make sense of the bytes
var errEmptyMat = errors.New("opencv returned an empty image")

// OpenCVDecoder decodes through OpenCV's imdecode. OpenCV only reports
// failure as an empty Mat, so the kind is recovered from the raw bytes.
type OpenCVDecoder struct{}

// Decode reads path and decodes it with OpenCV
func (d *OpenCVDecoder) Decode(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Kind: classifyReadError(err), Err: err}
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, &DecodeError{Path: path, Kind: KindOther, Err: err}
	}
	defer img.Close()

	if img.Empty() {
		return nil, &DecodeError{Path: path, Kind: classifyUndecodable(data), Err: errEmptyMat}
	}

	out, err := img.ToImage()
	if err != nil {
		return nil, &DecodeError{Path: path, Kind: KindOther, Err: fmt.Errorf("convert mat: %w", err)}
	}
	return out, nil
}
