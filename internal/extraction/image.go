package extraction

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// NormalizeImage applies the EXIF orientation, shrinks the image to fit maxSide
// and re-encodes it as JPEG. Input that does not decode is returned unchanged.
func NormalizeImage(data []byte, maxSide int) []byte {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data
	}
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return data
	}
	return buf.Bytes()
}
