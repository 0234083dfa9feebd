package handle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"jlpt-snap/api/internal/logging"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/ocr/openai"
	"jlpt-snap/api/internal/routing"
)

type upstreamCall struct {
	auth  string
	model string
	body  map[string]any
}

// fakeUpstream answers chat-completions with status and body, recording the
// last request.
func fakeUpstream(t *testing.T, status int, body string, last *upstreamCall) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if last != nil {
			last.auth = r.Header.Get("Authorization")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &last.body)
			last.model, _ = last.body["model"].(string)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return string(b)
}

func newHandle(upstreamURL string) *Handle {
	eng := openai.New().WithLogger(logging.Discard())
	return New(eng, Options{
		OCR:            Upstream{BaseURL: upstreamURL + "/", APIKey: "sk-server-ocr", Model: "deepseek-ocr-chat"},
		Analysis:       Upstream{BaseURL: upstreamURL, APIKey: "sk-server-llm", Model: "deepseek-ai/DeepSeek-V3"},
		RequestTimeout: 2 * time.Second,
		MaxBodyBytes:   1 << 10,
		Logger:         logging.Discard(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out := map[string]string{}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr, out
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHandle("http://127.0.0.1:1").Handler()
	for _, path := range []string{"/api/ocr", "/api/analyze"} {
		for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rr, out := do(t, h, m, path, "")
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s: status = %d", m, path, rr.Code)
			}
			if out["error"] != "Method Not Allowed" {
				t.Errorf("%s %s: body = %v", m, path, out)
			}
		}
	}
}

func TestOCR_Success(t *testing.T) {
	var last upstreamCall
	up := fakeUpstream(t, 200, completion("```text\n問題１\n```"), &last)
	h := newHandle(up.URL).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/ocr", `{"imageBase64":"data:image/jpeg;base64,QUJD"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if out["text"] != "問題１" {
		t.Errorf("text = %q", out["text"])
	}
	if last.auth != "Bearer sk-server-ocr" {
		t.Errorf("upstream auth = %q", last.auth)
	}
	if last.model != "deepseek-ocr-chat" {
		t.Errorf("default model not applied: %q", last.model)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestOCR_StringEncodedBodyAndModelOverride(t *testing.T) {
	var last upstreamCall
	up := fakeUpstream(t, 200, completion("x"), &last)
	h := newHandle(up.URL).Handler()

	inner := `{"imageBase64":"QUJD","model":"custom-ocr"}`
	quoted := strconv.Quote(inner)
	rr, _ := do(t, h, http.MethodPost, "/api/ocr", quoted)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if last.model != "custom-ocr" {
		t.Errorf("model = %q, want custom-ocr", last.model)
	}
}

func TestAnalyze_Success(t *testing.T) {
	var last upstreamCall
	up := fakeUpstream(t, 200, completion("## 1. 题型判断\n- 语法"), &last)
	h := newHandle(up.URL).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/analyze", `{"ocrText":"問題"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if out["analysis"] != "## 1. 题型判断\n- 语法" {
		t.Errorf("analysis = %q", out["analysis"])
	}
	if last.auth != "Bearer sk-server-llm" || last.model != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("auth/model = %q/%q", last.auth, last.model)
	}
	if last.body["temperature"] != 0.3 {
		t.Errorf("temperature = %v", last.body["temperature"])
	}
}

func TestMissingFields(t *testing.T) {
	h := newHandle("http://127.0.0.1:1").Handler()

	cases := []struct{ path, body, want string }{
		{"/api/ocr", `{}`, "缺少图像数据"},
		{"/api/ocr", ``, "缺少图像数据"},
		{"/api/ocr", `{"imageBase64":"   "}`, "缺少图像数据"},
		{"/api/analyze", `{"model":"m"}`, "缺少OCR识别文本"},
		{"/api/analyze", `""`, "缺少OCR识别文本"},
	}
	for _, c := range cases {
		rr, out := do(t, h, http.MethodPost, c.path, c.body)
		if rr.Code != http.StatusBadRequest || out["error"] != c.want {
			t.Errorf("%s %q: %d %v", c.path, c.body, rr.Code, out)
		}
	}
}

func TestBadJSON(t *testing.T) {
	h := newHandle("http://127.0.0.1:1").Handler()
	for _, body := range []string{`{"imageBase64":`, `[1,2]`, `"not an object"`, `42`} {
		rr, out := do(t, h, http.MethodPost, "/api/ocr", body)
		if rr.Code != http.StatusBadRequest || !strings.HasPrefix(out["error"], "bad json") {
			t.Errorf("body %q: %d %v", body, rr.Code, out)
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := newHandle("http://127.0.0.1:1").Handler()
	big := `{"imageBase64":"` + strings.Repeat("A", 4<<10) + `"}`
	rr, _ := do(t, h, http.MethodPost, "/api/ocr", big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestUnconfiguredServer(t *testing.T) {
	eng := openai.New().WithLogger(logging.Discard())
	h := New(eng, Options{
		OCR:      Upstream{BaseURL: "", APIKey: "sk"},
		Analysis: Upstream{BaseURL: "https://x", APIKey: "密钥"},
		Logger:   logging.Discard(),
	}).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/ocr", `{"imageBase64":"QUJD"}`)
	if rr.Code != http.StatusInternalServerError || out["error"] != "服务器未配置 OCR API Key 或 Base URL" {
		t.Errorf("ocr: %d %v", rr.Code, out)
	}
	rr, out = do(t, h, http.MethodPost, "/api/analyze", `{"ocrText":"x"}`)
	if rr.Code != http.StatusInternalServerError || out["error"] != "服务器未配置分析模型的 API Key 或 Base URL" {
		t.Errorf("analyze: %d %v", rr.Code, out)
	}
}

func TestUpstreamStatusPassthrough(t *testing.T) {
	up := fakeUpstream(t, http.StatusServiceUnavailable, "overloaded", nil)
	h := newHandle(up.URL).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/ocr", `{"imageBase64":"QUJD"}`)
	if rr.Code != http.StatusServiceUnavailable || out["error"] != "overloaded" {
		t.Errorf("got %d %v", rr.Code, out)
	}
}

func TestUpstreamEmptyErrorBody(t *testing.T) {
	up := fakeUpstream(t, http.StatusTooManyRequests, "", nil)
	h := newHandle(up.URL).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/analyze", `{"ocrText":"x"}`)
	if rr.Code != http.StatusTooManyRequests || out["error"] != "分析请求失败" {
		t.Errorf("got %d %v", rr.Code, out)
	}
}

func TestUpstreamEmptyContent(t *testing.T) {
	up := fakeUpstream(t, 200, `{"choices":[]}`, nil)
	h := newHandle(up.URL).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/ocr", `{"imageBase64":"QUJD"}`)
	if rr.Code != http.StatusBadGateway || out["error"] != "OCR服务未返回有效内容" {
		t.Errorf("ocr: %d %v", rr.Code, out)
	}
	rr, out = do(t, h, http.MethodPost, "/api/analyze", `{"ocrText":"x"}`)
	if rr.Code != http.StatusBadGateway || out["error"] != "分析模型未返回内容" {
		t.Errorf("analyze: %d %v", rr.Code, out)
	}
}

func TestUpstreamDeadline(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer up.Close()

	eng := openai.New().WithLogger(logging.Discard())
	h := New(eng, Options{
		Analysis:       Upstream{BaseURL: up.URL, APIKey: "sk"},
		RequestTimeout: 50 * time.Millisecond,
		Logger:         logging.Discard(),
	}).Handler()

	rr, _ := do(t, h, http.MethodPost, "/api/analyze", `{"ocrText":"x"}`)
	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rr.Code)
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	url := up.URL
	up.Close()

	rr, _ := do(t, newHandle(url).Handler(), http.MethodPost, "/api/analyze", `{"ocrText":"x"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

type panicEngine struct{}

func (panicEngine) Name() string { return "panic" }
func (panicEngine) Transcribe(context.Context, routing.Route, ocr.TranscribeInput) (string, error) {
	panic("boom")
}
func (panicEngine) Analyze(context.Context, routing.Route, ocr.AnalyzeInput) (string, error) {
	panic("boom")
}

func TestRecover(t *testing.T) {
	h := New(panicEngine{}, Options{
		OCR:    Upstream{BaseURL: "https://x", APIKey: "sk"},
		Logger: logging.Discard(),
	}).Handler()

	rr, out := do(t, h, http.MethodPost, "/api/ocr", `{"imageBase64":"QUJD"}`)
	if rr.Code != http.StatusInternalServerError || out["error"] == "" {
		t.Errorf("got %d %v", rr.Code, out)
	}
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandle("http://x").Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}
