package analysis

// Result is the outcome of one successful pipeline run. It is not modified
// after creation; derived views are recomputed on each call.
type Result struct {
	OriginalImage string `json:"originalImage"`
	OCRText       string `json:"ocrText"`
	Analysis      string `json:"analysis"`
	Type          Type   `json:"type"`
}

func NewResult(image, ocrText, markdown string) Result {
	return Result{
		OriginalImage: image,
		OCRText:       ocrText,
		Analysis:      markdown,
		Type:          Classify(ocrText, markdown),
	}
}

func (r Result) Sections() []Section {
	if r.Analysis == "" {
		return nil
	}
	return Segment(r.Analysis)
}

func (r Result) KeyInsights() []string {
	return KeyInsights(r.Analysis)
}
