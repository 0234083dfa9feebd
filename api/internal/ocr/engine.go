package ocr

import (
	"context"
	"errors"

	"jlpt-snap/api/internal/routing"
)

type TranscribeInput struct {
	// ImageBase64 may be bare base64 or a data URI of any image type.
	ImageBase64 string
	Model       string
}

type AnalyzeInput struct {
	OCRText string
	Model   string
}

// Engine runs the two pipeline stages against one kind of route.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, route routing.Route, in TranscribeInput) (string, error)
	Analyze(ctx context.Context, route routing.Route, in AnalyzeInput) (string, error)
}

type Engines struct {
	Direct  Engine
	Proxied Engine
}

func (e *Engines) GetEngine(route routing.Route) (Engine, error) {
	switch route.Mode {
	case routing.Direct:
		if e.Direct != nil {
			return e.Direct, nil
		}
	case routing.Proxied:
		if e.Proxied != nil {
			return e.Proxied, nil
		}
	}
	return nil, errors.New("no engine registered for " + route.Mode.String() + " routes")
}
