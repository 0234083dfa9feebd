// Package routing decides, per request and per stage, whether a call goes
// through the server proxy or straight to the user's upstream endpoint.
package routing

import (
	"strings"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/settings"
)

type Stage int

const (
	StageOCR Stage = iota
	StageAnalysis
)

func (s Stage) String() string {
	if s == StageAnalysis {
		return "analysis"
	}
	return "ocr"
}

// ProxyPath is the local proxy route serving the stage.
func (s Stage) ProxyPath() string {
	if s == StageAnalysis {
		return "/api/analyze"
	}
	return "/api/ocr"
}

// ErrStage maps a routing stage onto the error stage vocabulary.
func (s Stage) ErrStage() apperr.Stage {
	if s == StageAnalysis {
		return apperr.StageAnalysis
	}
	return apperr.StageTranscription
}

type Mode int

const (
	Proxied Mode = iota
	Direct
)

func (m Mode) String() string {
	if m == Direct {
		return "direct"
	}
	return "proxied"
}

// Route is resolved once per stage call. Path is set for Proxied routes,
// Endpoint for Direct ones.
type Route struct {
	Mode     Mode
	Stage    Stage
	Path     string
	Endpoint Endpoint
	Model    string
}

type Endpoint struct {
	BaseURL string
	APIKey  string
}

// NewEndpoint validates and normalizes an upstream base URL and key.
func NewEndpoint(baseURL, apiKey string) (Endpoint, error) {
	const op = "routing.NewEndpoint"

	base := TrimTrailingSlash(strings.TrimSpace(baseURL))
	key := strings.TrimSpace(apiKey)
	if base == "" || key == "" {
		return Endpoint{}, apperr.New(apperr.KindConfiguration, op, "base URL and API key are required")
	}
	if !IsPrintableASCII(key) {
		return Endpoint{}, apperr.New(apperr.KindValidation, op, NonASCIIKeyMessage)
	}
	return Endpoint{BaseURL: base, APIKey: key}, nil
}

const NonASCIIKeyMessage = "API Key 格式错误：包含非 ASCII 字符（如中文或特殊符号）。请检查配置是否误复制了多余内容。"

func (e Endpoint) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.BaseURL + path
}

func (e Endpoint) AuthHeader() string {
	return "Bearer " + e.APIKey
}

// TrimTrailingSlash removes at most one trailing slash.
func TrimTrailingSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}

// IsPrintableASCII reports whether every byte of s is in 0x20..0x7E.
func IsPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// Resolve picks the route for one stage. Direct mode fails fast when the
// stage's base URL or key is missing or malformed.
func Resolve(s settings.Settings, stage Stage) (Route, error) {
	model := s.OCRModel
	base, key := s.OCRBaseURL, s.OCRAPIKey
	missing := "请在设置中填写 OCR 服务的 Base URL 与 API Key"
	if stage == StageAnalysis {
		model = s.AnalysisModel
		base, key = s.AnalysisBaseURL, s.AnalysisAPIKey
		missing = "请在设置中填写 LLM 服务的 Base URL 与 API Key"
	}
	model = strings.TrimSpace(model)

	if s.UseServerKeys {
		return Route{Mode: Proxied, Stage: stage, Path: stage.ProxyPath(), Model: model}, nil
	}

	ep, err := NewEndpoint(base, key)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConfiguration) {
			e := apperr.New(apperr.KindConfiguration, "routing.Resolve", missing)
			return Route{}, apperr.WithStage(e, stage.ErrStage())
		}
		return Route{}, apperr.WithStage(err, stage.ErrStage())
	}
	return Route{Mode: Direct, Stage: stage, Endpoint: ep, Model: model}, nil
}
