package util

import "testing"

func TestStripCodeFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"```\n問題\n```", "問題"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```Markdown\n# 題\n```", "# 題"},
		{"```TEXT\nabc\n```", "abc"},
		{"```go\nx\n```", "```go\nx"},
		{"  spaced  ", "spaced"},
		{"```\nonly open", "only open"},
		{"```text\nx\n```\n", "x"},
		{"```text\n問題１\n```\n\n", "問題１"},
		{"\n```json\n{}\n```  ", "{}"},
	}
	for _, tt := range tests {
		if got := StripCodeFences(tt.in); got != tt.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripDataURI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"data:image/png;base64,AAAA", "AAAA"},
		{"data:image/jpeg;base64,BBBB", "BBBB"},
		{"CCCC", "CCCC"},
		{"data:application/pdf;base64,DDDD", "data:application/pdf;base64,DDDD"},
	}
	for _, tt := range tests {
		if got := StripDataURI(tt.in); got != tt.want {
			t.Errorf("StripDataURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSniffMimeHTTP(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
		{[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{[]byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{[]byte("GIF89a"), "image/gif"},
		{[]byte("hello"), "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := SniffMimeHTTP(tt.in); got != tt.want {
			t.Errorf("SniffMimeHTTP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}
