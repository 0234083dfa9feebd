package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jlpt-snap/api/internal/analysis"
	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/logging"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/ocr/openai"
	"jlpt-snap/api/internal/routing"
	"jlpt-snap/api/internal/settings"
)

type fakeEngine struct {
	mu       sync.Mutex
	text     string
	md       string
	ocrErr   error
	anErr    error
	block    bool
	calls    []string
	lastOCR  ocr.TranscribeInput
	lastMode routing.Mode
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(ctx context.Context, route routing.Route, in ocr.TranscribeInput) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "transcribe")
	f.lastOCR = in
	f.lastMode = route.Mode
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", apperr.Transport(apperr.StageTranscription, "fake", ctx.Err())
	}
	return f.text, f.ocrErr
}

func (f *fakeEngine) Analyze(ctx context.Context, route routing.Route, in ocr.AnalyzeInput) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "analyze:"+in.OCRText+":"+in.Model)
	f.mu.Unlock()
	return f.md, f.anErr
}

func newRunner(eng ocr.Engine, timeout time.Duration) *Runner {
	return NewRunner(&ocr.Engines{Direct: eng, Proxied: eng}, timeout, logging.Discard())
}

func TestRun_Success(t *testing.T) {
	eng := &fakeEngine{text: "問題の読み方", md: "## 1. 题型判断\n- 文字·词汇"}
	var steps []routing.Stage

	res, err := newRunner(eng, time.Second).Run(context.Background(), "data:image/png;base64,AAAA", settings.Defaults(),
		func(s routing.Stage) { steps = append(steps, s) })
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != analysis.TypeVocab || res.OCRText != "問題の読み方" || res.OriginalImage != "data:image/png;base64,AAAA" {
		t.Errorf("result = %+v", res)
	}
	if len(steps) != 2 || steps[0] != routing.StageOCR || steps[1] != routing.StageAnalysis {
		t.Errorf("progress = %v", steps)
	}
	if eng.lastMode != routing.Proxied || eng.lastOCR.Model != "deepseek-ocr-chat" {
		t.Errorf("mode/model = %v/%q", eng.lastMode, eng.lastOCR.Model)
	}
	if len(eng.calls) != 2 || eng.calls[1] != "analyze:問題の読み方:deepseek-ai/DeepSeek-V3" {
		t.Errorf("calls = %v", eng.calls)
	}
}

func TestRun_StopsAfterTranscriptionFailure(t *testing.T) {
	eng := &fakeEngine{ocrErr: apperr.Upstream(apperr.StageTranscription, "fake", "OCR请求失败", 500, "boom")}
	_, err := newRunner(eng, time.Second).Run(context.Background(), "AAAA", settings.Defaults(), nil)
	if apperr.StageOf(err) != apperr.StageTranscription {
		t.Fatalf("stage = %q (%v)", apperr.StageOf(err), err)
	}
	if len(eng.calls) != 1 {
		t.Errorf("analysis must not run after a failed transcription: %v", eng.calls)
	}
}

func TestRun_DirectModeMissingCredentialsFailsFast(t *testing.T) {
	eng := &fakeEngine{}
	s := settings.Defaults()
	s.UseServerKeys = false

	_, err := newRunner(eng, time.Second).Run(context.Background(), "AAAA", s, nil)
	if !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(eng.calls) != 0 {
		t.Errorf("no engine call expected, got %v", eng.calls)
	}
}

func TestRun_StageTimeout(t *testing.T) {
	eng := &fakeEngine{block: true}
	start := time.Now()
	_, err := newRunner(eng, 30*time.Millisecond).Run(context.Background(), "AAAA", settings.Defaults(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("stage deadline not applied")
	}
}

func TestRunSession_UpstreamFailureReturnsToCrop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "overloaded")
	}))
	defer srv.Close()

	direct := openai.New().WithLogger(logging.Discard())
	runner := NewRunner(&ocr.Engines{Direct: direct}, time.Second, logging.Discard())

	s := settings.Defaults()
	s.UseServerKeys = false
	s.OCRBaseURL = srv.URL
	s.OCRAPIKey = "sk-test"

	sess := NewSession()
	if err := sess.Upload("data:image/png;base64,AAAA"); err != nil {
		t.Fatal(err)
	}

	_, err := runner.RunSession(context.Background(), sess, s, nil)
	if apperr.StageOf(err) != apperr.StageTranscription {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("error %q lacks status/body", err.Error())
	}

	snap := sess.Snapshot()
	if snap.State != StateCrop {
		t.Errorf("state = %s, want crop", snap.State)
	}
	if snap.Image != "data:image/png;base64,AAAA" {
		t.Errorf("image not preserved: %q", snap.Image)
	}
	if snap.Err == nil {
		t.Error("error not recorded on session")
	}
}

func TestRunSession_Success(t *testing.T) {
	eng := &fakeEngine{text: "t", md: "语法"}
	sess := NewSession()
	_ = sess.Upload("img")

	res, err := newRunner(eng, time.Second).RunSession(context.Background(), sess, settings.Defaults(), nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := sess.Snapshot()
	if snap.State != StateResult || snap.Result == nil || snap.Result.Type != res.Type {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunSession_RequiresCrop(t *testing.T) {
	_, err := newRunner(&fakeEngine{}, time.Second).RunSession(context.Background(), NewSession(), settings.Defaults(), nil)
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StateUpload {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestSessionTransitions(t *testing.T) {
	s := NewSession()
	if s.State() != StateUpload {
		t.Fatal("new session starts on upload")
	}
	if _, err := s.Begin(); err == nil {
		t.Error("upload -> analyzing must fail")
	}
	if err := s.Complete(analysis.Result{}); err == nil {
		t.Error("upload -> result must fail")
	}

	s.UploadFailed(errors.New("unreadable"))
	if snap := s.Snapshot(); snap.State != StateUpload || snap.Err == nil {
		t.Errorf("read failure should stay on upload with error: %+v", snap)
	}

	if err := s.Upload("a"); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Err != nil {
		t.Error("upload clears a previous error")
	}
	if err := s.Upload("b"); err == nil {
		t.Error("crop -> crop via Upload must fail")
	}
	if err := s.Recrop("c"); err != nil {
		t.Fatal(err)
	}

	img, err := s.Begin()
	if err != nil || img != "c" {
		t.Fatalf("Begin = %q, %v", img, err)
	}
	if _, err := s.Begin(); err == nil {
		t.Error("second Begin while analyzing must fail")
	}
	if err := s.Recrop("d"); err == nil {
		t.Error("Recrop while analyzing must fail")
	}

	if err := s.Complete(analysis.Result{OCRText: "x"}); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateResult {
		t.Fatal("expected result")
	}
	s.Fail(errors.New("late"))
	if s.State() != StateResult {
		t.Error("Fail outside analyzing is ignored")
	}

	s.Reset()
	snap := s.Snapshot()
	if snap.State != StateUpload || snap.Image != "" || snap.Result != nil || snap.Err != nil {
		t.Errorf("reset left state behind: %+v", snap)
	}
}

func TestSessionReplace(t *testing.T) {
	s := NewSession()
	if err := s.Replace("a"); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateCrop {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.Replace("b"); err != nil {
		t.Fatalf("replace on crop: %v", err)
	}

	if _, err := s.Begin(); err != nil {
		t.Fatal(err)
	}
	err := s.Replace("c")
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StateAnalyzing {
		t.Fatalf("replace while analyzing = %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateAnalyzing || snap.Image != "b" {
		t.Errorf("refused replace changed the session: %+v", snap)
	}

	if err := s.Complete(analysis.Result{OCRText: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Replace("d"); err != nil {
		t.Fatalf("replace on result: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateCrop || snap.Image != "d" || snap.Result != nil {
		t.Errorf("replace should drop the old result: %+v", snap)
	}
}

func TestProgressText(t *testing.T) {
	if ProgressText(routing.StageOCR) != "正在进行视觉识别 (OCR)..." {
		t.Error("ocr progress text")
	}
	if ProgressText(routing.StageAnalysis) != "正在进行智能解析..." {
		t.Error("analysis progress text")
	}
}
