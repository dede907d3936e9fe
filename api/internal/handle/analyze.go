package handle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"screenmind/api/internal/apperrors"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/vision"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AnalyzeRequest struct {
	ImageB64 string `json:"image_b64"`
}

type AnalyzeData struct {
	QuestionType    string  `json:"question_type"`
	QuestionContent string  `json:"question_content"`
	Answer          string  `json:"answer"`
	Explanation     string  `json:"explanation"`
	RawResponse     string  `json:"raw_response"`
	ParseFallback   bool    `json:"parse_fallback"`
	AnalysisTime    float64 `json:"analysis_time"`
	ModelUsed       string  `json:"model_used"`
	ImageSize       int     `json:"image_size"`
	ImageFormat     string  `json:"image_format"`
	ImageWidth      int     `json:"image_width"`
	ImageHeight     int     `json:"image_height"`
}

var (
	errNotImage = errors.New("文件必须是图片格式")
	errTooLarge = errors.New("图片文件过大")
)

func stripDataURL(b64 string) string {
	s := strings.TrimSpace(b64)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}

// readImage accepts a multipart "image" field or a JSON body with image_b64.
func (h *Handle) readImage(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("缺少图片文件: %w", err)
		}
		if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
			return nil, errNotImage
		}
		if fh.Size > h.opts.MaxUploadBytes {
			return nil, errTooLarge
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, h.opts.MaxUploadBytes+1))
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(stripDataURL(req.ImageB64))
	if err != nil || len(img) == 0 {
		return nil, errors.New("bad image_b64")
	}
	return img, nil
}

// deadline honours X-Request-Timeout (seconds) when present.
func (h *Handle) deadline(c *gin.Context) time.Duration {
	if ts := c.GetHeader("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.opts.RequestTimeout
}

func (h *Handle) Analyze(c *gin.Context) {
	start := time.Now()

	img, err := h.readImage(c)
	if err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe), errors.Is(err, errTooLarge):
			respondError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("图片文件过大，请上传小于%dMB的图片", h.opts.MaxUploadBytes>>20), "")
		default:
			badRequest(c, err.Error())
		}
		return
	}
	if int64(len(img)) > h.opts.MaxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("图片文件过大，请上传小于%dMB的图片", h.opts.MaxUploadBytes>>20), "")
		return
	}

	meta, err := vision.Inspect(img)
	if err != nil {
		ae := apperrors.InvalidImage(err)
		respondError(c, ae.Kind.StatusCode(), ae.Message, string(ae.Kind))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline(c))
	defer cancel()

	res := h.analyzer.AnalyzeQuestionImage(ctx, img)
	if !res.Success {
		respondError(c, res.ErrorKind.StatusCode(), res.Error, string(res.ErrorKind))
		return
	}

	provider, model := h.svc.Selection()
	elapsed := time.Since(start).Seconds()
	logger.WithFields(logrus.Fields{
		"request_id":     c.GetString("request_id"),
		"provider":       provider,
		"model":          model,
		"image_bytes":    len(img),
		"parse_fallback": res.ParseFallback,
	}).Info("image analyzed")

	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"data": AnalyzeData{
			QuestionType:    res.QuestionType,
			QuestionContent: res.QuestionContent,
			Answer:          res.Answer,
			Explanation:     res.Explanation,
			RawResponse:     res.RawResponse,
			ParseFallback:   res.ParseFallback,
			AnalysisTime:    math.Round(elapsed*100) / 100,
			ModelUsed:       model,
			ImageSize:       len(img),
			ImageFormat:     meta.MIME(),
			ImageWidth:      meta.Width,
			ImageHeight:     meta.Height,
		},
	})
}
