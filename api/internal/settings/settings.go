// Package settings holds the per-user pipeline configuration.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"jlpt-snap/api/internal/apperr"
	"jlpt-snap/api/internal/logging"
)

type Settings struct {
	OCRBaseURL      string `json:"ocrBaseUrl"`
	OCRAPIKey       string `json:"ocrApiKey"`
	OCRModel        string `json:"ocrModel"`
	AnalysisBaseURL string `json:"analysisBaseUrl"`
	AnalysisAPIKey  string `json:"analysisApiKey"`
	AnalysisModel   string `json:"analysisModel"`
	UseServerKeys   bool   `json:"useServerKeys"`
}

func Defaults() Settings {
	return Settings{
		OCRBaseURL:      "",
		OCRAPIKey:       "",
		OCRModel:        "deepseek-ocr-chat",
		AnalysisBaseURL: "https://api.siliconflow.cn/v1",
		AnalysisAPIKey:  "",
		AnalysisModel:   "deepseek-ai/DeepSeek-V3",
		UseServerKeys:   true,
	}
}

var signature = func() string {
	b, _ := json.Marshal(Defaults())
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}()

// Signature fingerprints the default settings shape. Persisted settings
// stamped with a different signature are stale.
func Signature() string { return signature }

// Fields lists the names accepted by Set, in display order.
var Fields = []string{
	"ocrBaseUrl", "ocrApiKey", "ocrModel",
	"analysisBaseUrl", "analysisApiKey", "analysisModel",
	"useServerKeys",
}

// Set returns a copy of s with one field replaced.
func (s Settings) Set(field, value string) (Settings, error) {
	value = strings.TrimSpace(value)
	switch field {
	case "ocrBaseUrl":
		s.OCRBaseURL = value
	case "ocrApiKey":
		s.OCRAPIKey = value
	case "ocrModel":
		s.OCRModel = value
	case "analysisBaseUrl":
		s.AnalysisBaseURL = value
	case "analysisApiKey":
		s.AnalysisAPIKey = value
	case "analysisModel":
		s.AnalysisModel = value
	case "useServerKeys":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return s, apperr.New(apperr.KindValidation, "settings.Set",
				fmt.Sprintf("useServerKeys expects true or false, got %q", value))
		}
		s.UseServerKeys = b
	default:
		return s, apperr.New(apperr.KindValidation, "settings.Set",
			fmt.Sprintf("unknown settings field %q", field))
	}
	return s, nil
}

// Masked is a display copy with API keys obscured.
func (s Settings) Masked() Settings {
	s.OCRAPIKey = logging.MaskKey(s.OCRAPIKey)
	s.AnalysisAPIKey = logging.MaskKey(s.AnalysisAPIKey)
	return s
}
