package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"screenmind/api/internal/logger"
	"screenmind/api/internal/worker"
)

const (
	debounce     = 1200 * time.Millisecond
	maxPixels    = 18_000_000
	maxDownload  = 20 << 20
	acceptedText = "📷 已收到图片，正在分析…"
	poolBusyText = "⏳ 服务繁忙，请稍后再试"

	downloadFailedText = "❌ 图片下载失败，请重新发送"
)

// photoBatch collects the parts of one Telegram album.
type photoBatch struct {
	chatID  int64
	mu      sync.Mutex
	fileIDs []string
	timer   *time.Timer
}

func (r *Router) acceptPhoto(msg *tgbotapi.Message) {
	ph := msg.Photo[len(msg.Photo)-1]
	r.acceptFile(msg.Chat.ID, msg.MediaGroupID, ph.FileID)
}

func (r *Router) acceptDocument(msg *tgbotapi.Message) {
	r.acceptFile(msg.Chat.ID, msg.MediaGroupID, msg.Document.FileID)
}

func (r *Router) acceptFile(chatID int64, mediaGroupID, fileID string) {
	if mediaGroupID == "" {
		r.send(chatID, acceptedText)
		r.enqueue(chatID, []string{fileID})
		return
	}

	bi, loaded := r.batches.LoadOrStore(mediaGroupID, &photoBatch{chatID: chatID})
	b := bi.(*photoBatch)

	b.mu.Lock()
	b.fileIDs = append(b.fileIDs, fileID)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.debounce(), func() { r.flushBatch(mediaGroupID) })
	b.mu.Unlock()

	if !loaded {
		r.send(chatID, acceptedText)
	}
}

func (r *Router) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return debounce
}

func (r *Router) flushBatch(key string) {
	bi, ok := r.batches.LoadAndDelete(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	ids := append([]string(nil), b.fileIDs...)
	b.mu.Unlock()

	if len(ids) > 0 {
		r.enqueue(b.chatID, ids)
	}
}

func (r *Router) enqueue(chatID int64, fileIDs []string) {
	err := r.Pool.Submit(context.Background(), func() { r.analyzeFiles(chatID, fileIDs) })
	if errors.Is(err, worker.ErrClosed) {
		r.send(chatID, poolBusyText)
		return
	}
	if err != nil {
		r.sendError(chatID, err)
	}
}

func (r *Router) analyzeFiles(chatID int64, fileIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
	defer cancel()

	images := make([][]byte, 0, len(fileIDs))
	for _, id := range fileIDs {
		b, err := r.fetch(ctx, id)
		if err != nil {
			logger.WithFields(logrus.Fields{"chat_id": chatID, "file_id": id}).WithError(err).Warn("telegram download failed")
			r.send(chatID, downloadFailedText)
			return
		}
		images = append(images, b)
	}

	img := images[0]
	if len(images) > 1 {
		merged, err := combineAsOne(images)
		if err != nil {
			r.sendError(chatID, fmt.Errorf("合并图片: %w", err))
			return
		}
		img = merged
	}

	res := r.Analyzer.AnalyzeQuestionImage(ctx, img)
	logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"images":  len(images),
		"success": res.Success,
	}).Info("telegram analysis done")
	r.sendResult(chatID, res)
}

// fetch errors never carry a URL: Telegram file URLs embed the bot token.
func (r *Router) fetch(ctx context.Context, fileID string) ([]byte, error) {
	link, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, stripURL(err)
	}
	b, err := download(ctx, link)
	if err != nil {
		return nil, stripURL(err)
	}
	return b, nil
}

func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", strings.ToLower(ue.Op), ue.Err)
	}
	return err
}

// combineAsOne stacks images vertically, centred on a white canvas, and
// re-encodes the result as JPEG, scaling down past maxPixels.
func combineAsOne(images [][]byte) ([]byte, error) {
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		bounds := img.Bounds()
		if bounds.Dx() > maxW {
			maxW = bounds.Dx()
		}
		sumH += bounds.Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("empty images")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(dst, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	final := image.Image(dst)
	if total := maxW * sumH; total > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(total))
		newW := max(int(float64(maxW)*scale+0.5), 1)
		newH := max(int(float64(sumH)*scale+0.5), 1)
		final = scaleDownNN(dst, newW, newH)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, final, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func scaleDownNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*srcH)/newH
		for x := 0; x < newW; x++ {
			sx := sb.Min.X + (x*srcW)/newW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
