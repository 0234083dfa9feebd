package handle

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/routing"
)

type OCRRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Model       string `json:"model,omitempty"`
}

type OCRResponse struct {
	Text string `json:"text"`
}

type AnalyzeRequest struct {
	OCRText string `json:"ocrText"`
	Model   string `json:"model,omitempty"`
}

type AnalyzeResponse struct {
	Analysis string `json:"analysis"`
}

// per-stage reply texts
type stageText struct {
	missingField  string
	unconfigured  string
	upstreamFail  string
	emptyResponse string
}

var (
	ocrReplies = stageText{
		missingField:  "缺少图像数据",
		unconfigured:  "服务器未配置 OCR API Key 或 Base URL",
		upstreamFail:  "OCR请求失败",
		emptyResponse: "OCR服务未返回有效内容",
	}
	analysisReplies = stageText{
		missingField:  "缺少OCR识别文本",
		unconfigured:  "服务器未配置分析模型的 API Key 或 Base URL",
		upstreamFail:  "分析请求失败",
		emptyResponse: "分析模型未返回内容",
	}
)

func (h *Handle) OCR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	var req OCRRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		writeErr(w, http.StatusBadRequest, ocrReplies.missingField)
		return
	}

	route, ok := h.serverRoute(w, routing.StageOCR, h.opts.OCR, req.Model, ocrReplies)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	text, err := h.engine.Transcribe(ctx, route, ocr.TranscribeInput{ImageBase64: req.ImageBase64})
	if err != nil {
		h.fail(ctx, w, err, ocrReplies)
		return
	}
	writeJSON(w, http.StatusOK, OCRResponse{Text: text})
}

func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	var req AnalyzeRequest
	if err := decodeBody(w, r, h.maxBody, &req); err != nil {
		h.badBody(w, err)
		return
	}
	if strings.TrimSpace(req.OCRText) == "" {
		writeErr(w, http.StatusBadRequest, analysisReplies.missingField)
		return
	}

	route, ok := h.serverRoute(w, routing.StageAnalysis, h.opts.Analysis, req.Model, analysisReplies)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	md, err := h.engine.Analyze(ctx, route, ocr.AnalyzeInput{OCRText: req.OCRText})
	if err != nil {
		h.fail(ctx, w, err, analysisReplies)
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{Analysis: md})
}

// serverRoute builds a Direct route from the server's own credentials. The
// client may pick the model but never the endpoint or key.
func (h *Handle) serverRoute(w http.ResponseWriter, stage routing.Stage, up Upstream, model string, txt stageText) (routing.Route, bool) {
	ep, err := routing.NewEndpoint(up.BaseURL, up.APIKey)
	if err != nil {
		h.log.Error("server upstream misconfigured", "stage", stage.String(), "err", err)
		writeErr(w, http.StatusInternalServerError, txt.unconfigured)
		return routing.Route{}, false
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = strings.TrimSpace(up.Model)
	}
	return routing.Route{Mode: routing.Direct, Stage: stage, Endpoint: ep, Model: model}, true
}

func (h *Handle) fail(ctx context.Context, w http.ResponseWriter, err error, txt stageText) {
	code := apperr.HTTPStatus(err)
	msg := err.Error()

	if e, ok := apperr.As(err); ok {
		switch e.Kind {
		case apperr.KindUpstreamHTTP:
			msg = e.Body
			if msg == "" {
				msg = txt.upstreamFail
			}
		case apperr.KindEmptyResponse:
			msg = txt.emptyResponse
		case apperr.KindTransport:
			switch {
			case errors.Is(e.Cause, context.DeadlineExceeded):
				msg = "上游服务响应超时"
			case e.Cause != nil:
				msg = txt.upstreamFail + ": " + e.Cause.Error()
			default:
				msg = txt.upstreamFail
			}
		case apperr.KindValidation:
			msg = txt.missingField
		default:
			msg = e.Message
		}
	}

	h.log.Warn("proxy request failed",
		"request_id", RequestID(ctx),
		"status", code,
		"stage", string(apperr.StageOf(err)),
		"err", err,
	)
	writeErr(w, code, msg)
}
