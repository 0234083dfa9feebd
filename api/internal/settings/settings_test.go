package settings

import (
	"testing"

	"jlpt-snap/api/internal/apperr"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if !d.UseServerKeys {
		t.Error("defaults should route through the server proxy")
	}
	if d.OCRModel != "deepseek-ocr-chat" || d.AnalysisModel != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("unexpected default models: %q / %q", d.OCRModel, d.AnalysisModel)
	}
	if d.AnalysisBaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("AnalysisBaseURL = %q", d.AnalysisBaseURL)
	}
}

func TestSignatureStable(t *testing.T) {
	a, b := Signature(), Signature()
	if a == "" || a != b {
		t.Fatalf("signature not stable: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestSet(t *testing.T) {
	orig := Defaults()

	got, err := orig.Set("ocrApiKey", "  sk-abc  ")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got.OCRAPIKey != "sk-abc" {
		t.Errorf("OCRAPIKey = %q, want trimmed", got.OCRAPIKey)
	}
	if orig.OCRAPIKey != "" {
		t.Error("Set must not mutate the receiver")
	}

	got, err = got.Set("useServerKeys", "false")
	if err != nil || got.UseServerKeys {
		t.Fatalf("useServerKeys=false not applied: %v", err)
	}

	if _, err := got.Set("useServerKeys", "maybe"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := got.Set("color", "red"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown field, got %v", err)
	}
}

func TestSetCoversEveryField(t *testing.T) {
	s := Defaults()
	for _, f := range Fields {
		v := "x"
		if f == "useServerKeys" {
			v = "true"
		}
		if _, err := s.Set(f, v); err != nil {
			t.Errorf("Set(%q): %v", f, err)
		}
	}
}

func TestMasked(t *testing.T) {
	s := Defaults()
	s.OCRAPIKey = "sk-1234567890abcd"
	m := s.Masked()
	if m.OCRAPIKey == s.OCRAPIKey {
		t.Error("key not masked")
	}
	if s.OCRAPIKey != "sk-1234567890abcd" {
		t.Error("Masked must not mutate the receiver")
	}
}
