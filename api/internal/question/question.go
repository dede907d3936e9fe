package question

import (
	"context"
	"time"

	"screenmind/api/internal/apperrors"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/metrics"
	"screenmind/api/internal/parser"

	"github.com/sirupsen/logrus"
)

// StructuredResult is what every analysis returns, success or not.
type StructuredResult struct {
	Success         bool           `json:"success"`
	QuestionType    string         `json:"question_type"`
	QuestionContent string         `json:"question_content"`
	Answer          string         `json:"answer"`
	Explanation     string         `json:"explanation"`
	RawResponse     string         `json:"raw_response"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       apperrors.Kind `json:"error_kind,omitempty"`
	ParseFallback   bool           `json:"parse_fallback"`
}

// Backend is the part of analysis.Service the analyzer needs.
type Backend interface {
	Analyze(ctx context.Context, image []byte) (string, error)
	Selection() (provider, model string)
}

type Analyzer struct {
	backend Backend
}

func NewAnalyzer(b Backend) *Analyzer {
	return &Analyzer{backend: b}
}

// AnalyzeQuestionImage runs one image through the backend and the parser.
// Backend failures short-circuit; the parser only ever sees real replies.
func (a *Analyzer) AnalyzeQuestionImage(ctx context.Context, image []byte) StructuredResult {
	provider, model := a.backend.Selection()
	log := logger.WithFields(logrus.Fields{"provider": provider, "model": model})
	start := time.Now()
	defer func() {
		metrics.AnalysisDurationSeconds.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	res := StructuredResult{QuestionType: parser.Unknown}

	raw, err := a.backend.Analyze(ctx, image)
	if err != nil {
		ae, ok := apperrors.As(err)
		if !ok {
			ae = apperrors.Unclassified(err)
		}
		res.Error = ae.Message
		res.ErrorKind = ae.Kind
		metrics.AnalysesTotal.WithLabelValues(provider, string(ae.Kind)).Inc()
		log.WithField("kind", ae.Kind).Warn("question analysis failed")
		return res
	}

	p := parser.Parse(raw)
	res.Success = true
	res.RawResponse = raw
	res.QuestionType = p.QuestionType
	res.QuestionContent = p.QuestionContent
	res.Answer = p.Answer
	res.Explanation = p.Explanation
	res.ParseFallback = p.Fallback

	outcome := "ok"
	if p.Fallback {
		outcome = string(apperrors.KindParseFallback)
	}
	metrics.AnalysesTotal.WithLabelValues(provider, outcome).Inc()
	log.WithFields(logrus.Fields{
		"question_type":  res.QuestionType,
		"parse_fallback": res.ParseFallback,
		"elapsed_ms":     time.Since(start).Milliseconds(),
	}).Info("question analyzed")
	return res
}
