package ocr

import (
	"jlpt-snap/api/internal/util"
)

// PNGDataURI re-wraps an image payload as a PNG data URI. Any existing
// data-URI prefix is dropped first.
func PNGDataURI(imageBase64 string) string {
	return util.MakeDataURL("image/png", util.StripDataURI(imageBase64))
}

// CleanTranscript strips a fenced-block wrapper and surrounding whitespace
// from a vision model reply.
func CleanTranscript(content string) string {
	return util.StripCodeFences(content)
}
