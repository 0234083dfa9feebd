// Package openai talks to OpenAI-compatible chat-completions endpoints
// directly, using credentials carried by a Direct route.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/prompt"
	"jlpt-snap/api/internal/routing"
	"jlpt-snap/api/internal/util"
)

const (
	ocrMaxTokens        = 4096
	analysisTemperature = 0.3
	maxErrorBody        = 1 << 20
)

type Engine struct {
	httpc *http.Client
	log   *slog.Logger
}

func New() *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// vision models are slow to produce the first byte
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	return &Engine{
		// Timeout=0: the caller's context bounds each request
		httpc: &http.Client{Timeout: 0, Transport: tr},
		log:   slog.Default(),
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for tests).
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

func (e *Engine) Name() string { return "openai" }

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []ContentPart
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TranscriptionRequest builds the vision request for one image.
func TranscriptionRequest(model, imageBase64 string) ChatRequest {
	return ChatRequest{
		Model: model,
		Messages: []ChatMessage{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: prompt.OCRInstruction},
				{Type: "image_url", ImageURL: &ImageURL{URL: ocr.PNGDataURI(imageBase64), Detail: "high"}},
			},
		}},
		Stream:    false,
		MaxTokens: ocrMaxTokens,
	}
}

// AnalysisRequest builds the tutor request for one transcript.
func AnalysisRequest(model, transcript string) ChatRequest {
	t := analysisTemperature
	return ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt.JLPTSystem},
			{Role: "user", Content: prompt.AnalysisUser(transcript)},
		},
		Temperature: &t,
		Stream:      false,
	}
}

func (e *Engine) Transcribe(ctx context.Context, route routing.Route, in ocr.TranscribeInput) (string, error) {
	const op = "openai.Transcribe"
	stage := apperr.StageTranscription

	if strings.TrimSpace(in.ImageBase64) == "" {
		return "", apperr.WithStage(apperr.New(apperr.KindValidation, op, "缺少图像数据"), stage)
	}
	content, err := e.complete(ctx, route, stage, op, "OCR请求失败", TranscriptionRequest(model(route, in.Model), in.ImageBase64))
	if err != nil {
		return "", err
	}
	return ocr.CleanTranscript(content), nil
}

// Analyze returns the model's markdown unchanged; fences are kept.
func (e *Engine) Analyze(ctx context.Context, route routing.Route, in ocr.AnalyzeInput) (string, error) {
	const op = "openai.Analyze"
	stage := apperr.StageAnalysis

	if strings.TrimSpace(in.OCRText) == "" {
		return "", apperr.WithStage(apperr.New(apperr.KindValidation, op, "缺少OCR识别文本"), stage)
	}
	return e.complete(ctx, route, stage, op, "分析请求失败", AnalysisRequest(model(route, in.Model), in.OCRText))
}

func model(route routing.Route, override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return route.Model
}

func (e *Engine) complete(ctx context.Context, route routing.Route, stage apperr.Stage, op, failMsg string, body ChatRequest) (string, error) {
	if route.Mode != routing.Direct || route.Endpoint.BaseURL == "" {
		return "", apperr.WithStage(apperr.New(apperr.KindConfiguration, op, "direct route without endpoint"), stage)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperr.WithStage(apperr.Wrap(apperr.KindValidation, op, "encode request", err), stage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Endpoint.URL("/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return "", apperr.WithStage(apperr.Wrap(apperr.KindConfiguration, op, "build request", err), stage)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", route.Endpoint.AuthHeader())

	start := time.Now()
	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", apperr.Transport(stage, op, err)
	}
	defer resp.Body.Close()

	e.log.Debug("upstream call",
		"stage", string(stage),
		"model", body.Model,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", apperr.Upstream(stage, op, failMsg, resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if ctx.Err() != nil {
			return "", apperr.Transport(stage, op, ctx.Err())
		}
		return "", apperr.WithStage(apperr.Wrap(apperr.KindEmptyResponse, op, "undecodable upstream reply", err), stage)
	}
	if len(raw.Choices) == 0 || raw.Choices[0].Message.Content == nil || *raw.Choices[0].Message.Content == "" {
		return "", apperr.WithStage(apperr.New(apperr.KindEmptyResponse, op, emptyMessage(stage)), stage)
	}
	e.log.Debug("upstream content", "stage", string(stage), "preview", util.Truncate(*raw.Choices[0].Message.Content, 120))
	return *raw.Choices[0].Message.Content, nil
}

func emptyMessage(stage apperr.Stage) string {
	if stage == apperr.StageAnalysis {
		return "分析模型未返回内容"
	}
	return "OCR服务未返回有效内容"
}
