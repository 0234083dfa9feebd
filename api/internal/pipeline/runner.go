// Package pipeline runs transcription followed by analysis and tracks the
// per-user workflow around it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"jlpt-snap/api/internal/analysis"
	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/routing"
	"jlpt-snap/api/internal/settings"
)

const DefaultStageTimeout = 120 * time.Second

// Progress is told when a stage starts.
type Progress func(stage routing.Stage)

// ProgressText is the user-facing line for a running stage.
func ProgressText(stage routing.Stage) string {
	if stage == routing.StageAnalysis {
		return "正在进行智能解析..."
	}
	return "正在进行视觉识别 (OCR)..."
}

type Runner struct {
	engines      *ocr.Engines
	stageTimeout time.Duration
	log          *slog.Logger
}

func NewRunner(engines *ocr.Engines, stageTimeout time.Duration, log *slog.Logger) *Runner {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{engines: engines, stageTimeout: stageTimeout, log: log}
}

// Run transcribes image and analyzes the transcript. Each stage gets its
// own deadline; nothing is retried.
func (r *Runner) Run(ctx context.Context, image string, s settings.Settings, progress Progress) (analysis.Result, error) {
	var text string
	err := r.stage(ctx, s, routing.StageOCR, progress, func(ctx context.Context, eng ocr.Engine, route routing.Route) error {
		var err error
		text, err = eng.Transcribe(ctx, route, ocr.TranscribeInput{ImageBase64: image, Model: route.Model})
		return err
	})
	if err != nil {
		return analysis.Result{}, err
	}

	var md string
	err = r.stage(ctx, s, routing.StageAnalysis, progress, func(ctx context.Context, eng ocr.Engine, route routing.Route) error {
		var err error
		md, err = eng.Analyze(ctx, route, ocr.AnalyzeInput{OCRText: text, Model: route.Model})
		return err
	})
	if err != nil {
		return analysis.Result{}, err
	}

	res := analysis.NewResult(image, text, md)
	r.log.Info("pipeline done", "type", string(res.Type), "ocr_chars", len([]rune(text)), "analysis_chars", len([]rune(md)))
	return res, nil
}

func (r *Runner) stage(ctx context.Context, s settings.Settings, stage routing.Stage, progress Progress,
	call func(context.Context, ocr.Engine, routing.Route) error) error {

	route, err := routing.Resolve(s, stage)
	if err != nil {
		return err
	}
	eng, err := r.engines.GetEngine(route)
	if err != nil {
		return apperr.WithStage(apperr.Wrap(apperr.KindConfiguration, "pipeline.stage", "no engine", err), stage.ErrStage())
	}
	if progress != nil {
		progress(stage)
	}

	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()

	start := time.Now()
	err = call(ctx, eng, route)
	r.log.Debug("stage finished",
		"stage", stage.String(),
		"mode", route.Mode.String(),
		"engine", eng.Name(),
		"duration", time.Since(start),
		"err", err,
	)
	if err != nil {
		return apperr.WithStage(err, stage.ErrStage())
	}
	return nil
}

// RunSession drives sess through analyzing and into result, or back to
// crop on failure.
func (r *Runner) RunSession(ctx context.Context, sess *Session, s settings.Settings, progress Progress) (analysis.Result, error) {
	image, err := sess.Begin()
	if err != nil {
		return analysis.Result{}, err
	}
	res, err := r.Run(ctx, image, s, progress)
	if err != nil {
		sess.Fail(err)
		return analysis.Result{}, err
	}
	if err := sess.Complete(res); err != nil {
		return analysis.Result{}, err
	}
	return res, nil
}
