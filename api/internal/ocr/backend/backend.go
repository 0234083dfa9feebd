// Package backend runs the pipeline stages through the jlpt-proxy server,
// which holds the upstream credentials.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/routing"
)

const defaultFailure = "服务器代理请求失败"

type Engine struct {
	BaseURL string
	httpc   *http.Client
	log     *slog.Logger
}

func New(baseURL string) *Engine {
	return &Engine{
		BaseURL: routing.TrimTrailingSlash(strings.TrimSpace(baseURL)),
		httpc:   &http.Client{Timeout: 0},
		log:     slog.Default(),
	}
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.log = l
	}
	return e
}

func (e *Engine) Name() string { return "backend" }

type ocrRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Model       string `json:"model,omitempty"`
}

type analyzeRequest struct {
	OCRText string `json:"ocrText"`
	Model   string `json:"model,omitempty"`
}

func (e *Engine) Transcribe(ctx context.Context, route routing.Route, in ocr.TranscribeInput) (string, error) {
	model := in.Model
	if model == "" {
		model = route.Model
	}
	var out struct {
		Text *string `json:"text"`
	}
	err := e.post(ctx, route, apperr.StageTranscription, "backend.Transcribe",
		ocrRequest{ImageBase64: in.ImageBase64, Model: model}, &out)
	if err != nil {
		return "", err
	}
	if out.Text == nil {
		return "", apperr.WithStage(apperr.New(apperr.KindEmptyResponse, "backend.Transcribe", "OCR服务未返回有效内容"), apperr.StageTranscription)
	}
	return *out.Text, nil
}

func (e *Engine) Analyze(ctx context.Context, route routing.Route, in ocr.AnalyzeInput) (string, error) {
	model := in.Model
	if model == "" {
		model = route.Model
	}
	var out struct {
		Analysis *string `json:"analysis"`
	}
	err := e.post(ctx, route, apperr.StageAnalysis, "backend.Analyze",
		analyzeRequest{OCRText: in.OCRText, Model: model}, &out)
	if err != nil {
		return "", err
	}
	if out.Analysis == nil {
		return "", apperr.WithStage(apperr.New(apperr.KindEmptyResponse, "backend.Analyze", "分析模型未返回内容"), apperr.StageAnalysis)
	}
	return *out.Analysis, nil
}

func (e *Engine) post(ctx context.Context, route routing.Route, stage apperr.Stage, op string, payload, out any) error {
	if route.Mode != routing.Proxied || route.Path == "" {
		return apperr.WithStage(apperr.New(apperr.KindConfiguration, op, "proxied route without path"), stage)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.WithStage(apperr.Wrap(apperr.KindValidation, op, "encode request", err), stage)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+route.Path, bytes.NewReader(body))
	if err != nil {
		return apperr.WithStage(apperr.Wrap(apperr.KindConfiguration, op, "build request", err), stage)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpc.Do(req)
	if err != nil {
		return apperr.Transport(stage, op, err)
	}
	defer resp.Body.Close()
	e.log.Debug("backend call", "path", route.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return apperr.Upstream(stage, op, defaultFailure, resp.StatusCode, errorText(x))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return apperr.Transport(stage, op, ctx.Err())
		}
		return apperr.WithStage(apperr.Wrap(apperr.KindEmptyResponse, op, "undecodable proxy reply", err), stage)
	}
	return nil
}

// errorText prefers the {error} field of a proxy reply over the raw body.
func errorText(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return defaultFailure
}
