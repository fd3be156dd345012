package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// RawDraft LLM 返回的主题 JSON
type RawDraft struct {
	Title                string   `json:"title" validate:"required"`
	Statement            string   `json:"statement" validate:"required"`
	Classification       string   `json:"classification" validate:"required,oneof=threat vulnerability opportunity advantage"`
	SupportingFindingIDs []string `json:"supporting_finding_ids" validate:"min=1,dive,required"`
	// 引用占位字段只用于兼容模型输出，真实引用由匹配器从发现中填入
	PrimaryQuote   string `json:"primary_quote,omitempty"`
	SecondaryQuote string `json:"secondary_quote,omitempty"`
}

// ParseResult 解码结果的标签联合：ParseSuccess 或 ParseFailure
type ParseResult interface {
	isParseResult()
}

// ParseSuccess 解码并通过结构校验
type ParseSuccess struct {
	Draft RawDraft
	// Lenient 为 true 表示严格解码失败，经修复后才成功
	Lenient bool
}

// ParseFailure 解码失败或结构不合法
type ParseFailure struct {
	Reason model.Reason
	Err    error
}

func (ParseSuccess) isParseResult() {}
func (ParseFailure) isParseResult() {}

var validate = validator.New()

// Decode 先严格解码，失败后尝试宽松修复
func Decode(raw string) ParseResult {
	var d RawDraft
	lenient, err := decodeInto(raw, &d)
	if err != nil {
		return ParseFailure{Reason: model.ReasonMalformedOutput, Err: err}
	}
	normalize(&d)
	if err := validate.Struct(&d); err != nil {
		return ParseFailure{Reason: model.ReasonMalformedOutput, Err: fmt.Errorf("schema: %w", err)}
	}
	return ParseSuccess{Draft: d, Lenient: lenient}
}

var errNoObject = errors.New("no json object in output")

// decodeInto 严格解码失败时退回宽松解码，返回是否使用了宽松路径
func decodeInto(raw string, v any) (bool, error) {
	if err := strictDecode(raw, v); err == nil {
		return false, nil
	}
	if err := lenientDecode(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func strictDecode(raw string, v any) error {
	return json.Unmarshal([]byte(strings.TrimSpace(raw)), v)
}

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// lenientDecode 容忍前后散文、markdown 代码块、尾逗号和未加引号的键
func lenientDecode(raw string, v any) error {
	s := raw
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return errNoObject
	}
	s = trailingCommaRe.ReplaceAllString(s[start:end+1], "$1")
	if json.Unmarshal([]byte(s), v) == nil {
		return nil
	}
	// 键名修复可能误伤字符串内容，只在前面的修复不够时使用
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("lenient decode: %w", err)
	}
	return nil
}

func normalize(d *RawDraft) {
	d.Title = strings.TrimSpace(d.Title)
	d.Statement = strings.TrimSpace(d.Statement)
	d.Classification = strings.ToLower(strings.TrimSpace(d.Classification))
	d.SupportingFindingIDs = dedupe(d.SupportingFindingIDs)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
