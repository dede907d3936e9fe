package parser

import (
	"fmt"
	"strings"
)

// Sentinel question types.
const (
	Unknown      = "未知"
	Unrecognized = "未识别"
	ParseFailed  = "解析失败"
)

// Result holds the four fields extracted from a model reply.
type Result struct {
	QuestionType    string
	QuestionContent string
	Answer          string
	Explanation     string

	// Fallback is set when the reply had no usable headers (or parsing
	// blew up) and the raw text was returned as the answer.
	Fallback bool
}

type state int

const (
	stateNone state = iota
	stateQuestionContent
	stateAnswer
	stateExplanation
)

type field int

const (
	fieldNone field = iota
	fieldQuestionType
	fieldQuestionContent
	fieldAnswer
	fieldExplanation
)

var headers = []struct {
	label string
	field field
}{
	{"题目类型", fieldQuestionType},
	{"题目内容", fieldQuestionContent},
	{"正确答案", fieldAnswer},
	{"答案", fieldAnswer},
	{"解析", fieldExplanation},
	{"说明", fieldExplanation},
}

// update is the effect of one line on the result.
type update struct {
	field   field
	value   string
	replace bool
}

// Parse never fails: unusable input ends up verbatim in Answer.
func Parse(raw string) Result {
	return parse(raw, func(s string) []string { return strings.Split(s, "\n") })
}

func parse(raw string, split func(string) []string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{QuestionType: ParseFailed, Answer: raw, Fallback: true}
		}
	}()

	s := stateNone
	for _, line := range split(raw) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var u update
		s, u = transition(s, line)
		res.apply(u)
	}

	if res.QuestionType == "" && res.QuestionContent == "" && res.Answer == "" && res.Explanation == "" {
		return Result{QuestionType: Unrecognized, Answer: raw, Fallback: true}
	}
	if res.QuestionType == "" {
		res.QuestionType = Unknown
	}
	return res
}

// transition consumes one trimmed, non-blank line.
func transition(s state, line string) (state, update) {
	if f, value, ok := matchHeader(line); ok {
		next := s
		switch f {
		case fieldQuestionContent:
			next = stateQuestionContent
		case fieldAnswer:
			next = stateAnswer
		case fieldExplanation:
			next = stateExplanation
		}
		return next, update{field: f, value: value, replace: true}
	}

	switch s {
	case stateQuestionContent:
		return s, update{field: fieldQuestionContent, value: line}
	case stateAnswer:
		return s, update{field: fieldAnswer, value: line}
	case stateExplanation:
		return s, update{field: fieldExplanation, value: line}
	case stateNone:
		return s, update{}
	default:
		panic(fmt.Sprintf("parser: unknown state %d", s))
	}
}

// matchHeader reports whether line is "<label>：value" or "<label>:value".
func matchHeader(line string) (field, string, bool) {
	for _, h := range headers {
		rest, ok := strings.CutPrefix(line, h.label)
		if !ok {
			continue
		}
		if v, ok := strings.CutPrefix(rest, "："); ok {
			return h.field, strings.TrimSpace(v), true
		}
		if v, ok := strings.CutPrefix(rest, ":"); ok {
			return h.field, strings.TrimSpace(v), true
		}
	}
	return fieldNone, "", false
}

func (r *Result) apply(u update) {
	var dst *string
	switch u.field {
	case fieldQuestionType:
		dst = &r.QuestionType
	case fieldQuestionContent:
		dst = &r.QuestionContent
	case fieldAnswer:
		dst = &r.Answer
	case fieldExplanation:
		dst = &r.Explanation
	default:
		return
	}
	if u.replace || *dst == "" {
		*dst = u.value
		return
	}
	*dst += "\n" + u.value
}
