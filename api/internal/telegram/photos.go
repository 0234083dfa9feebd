package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "golang.org/x/image/webp" // webp decoder for imaging.Decode

	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/pipeline"
	"jlpt-snap/api/internal/util"
)

const defaultMaxPhotoSize = 20 << 20

var errPhotoTooLarge = errors.New("图片过大")

func isImageDocument(d *tgbotapi.Document) bool {
	return strings.HasPrefix(strings.ToLower(d.MimeType), "image/")
}

func (r *Router) acceptPhoto(ctx context.Context, chatID int64, fileID string) {
	sess := r.sessions.get(chatID)
	if sess.State() == pipeline.StateAnalyzing {
		r.send(chatID, busyText)
		return
	}

	dataURI, err := r.fetchPhoto(ctx, fileID)
	if err != nil {
		r.log().Warn("photo intake failed", "chat_id", chatID, "err", err)
		sess.UploadFailed(err)
		r.send(chatID, fmt.Sprintf("图片读取失败: %v", err))
		return
	}
	// a new photo replaces whatever the chat was looking at; the state is
	// checked again here since an analysis may have started meanwhile
	if err := sess.Replace(dataURI); err != nil {
		r.send(chatID, busyText)
		return
	}
	r.sendWithKeyboard(chatID, acceptedText, cropKeyboard())
}

func (r *Router) fetchPhoto(ctx context.Context, fileID string) (string, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	raw, err := r.download(ctx, url)
	if err != nil {
		return "", err
	}
	png, err := normalizeImage(raw)
	if err != nil {
		return "", err
	}
	return ocr.PNGDataURI(base64.StdEncoding.EncodeToString(png)), nil
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	limit := r.MaxPhotoSize
	if limit <= 0 {
		limit = defaultMaxPhotoSize
	}
	hc := r.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("download status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errPhotoTooLarge
	}
	return b, nil
}

// normalizeImage applies EXIF orientation, bounds the pixel count and
// re-encodes as PNG.
func normalizeImage(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", util.SniffMimeHTTP(raw), err)
	}
	return encodePNG(fitPixels(img, maxPixels))
}

func fitPixels(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h <= limit {
		return img
	}
	scale := math.Sqrt(float64(limit) / float64(w*h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// rotateDataURI turns a PNG data URI a quarter turn clockwise.
func rotateDataURI(dataURI string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(util.StripDataURI(dataURI))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	// imaging rotates counter-clockwise
	out, err := encodePNG(imaging.Rotate270(img))
	if err != nil {
		return "", err
	}
	return ocr.PNGDataURI(base64.StdEncoding.EncodeToString(out)), nil
}
