// Package validation 校验并归一化内容生成请求
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"content-ai-api/internal/domain/entity"
)

// DefaultMinWordCount 字数目标下限
const DefaultMinWordCount = 50

// Error 请求校验失败，Field 为出错字段路径（如 context.topic）
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UnsupportedContentTypeError 内容类型不在注册表内
type UnsupportedContentTypeError struct {
	ContentType entity.ContentType
}

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// Validator 请求校验器，无副作用，可并发使用
type Validator struct {
	minWords int
	validate *validator.Validate
}

// New 创建校验器
func New(minWordCount int) *Validator {
	if minWordCount <= 0 {
		minWordCount = DefaultMinWordCount
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{minWords: minWordCount, validate: v}
}

// Validate 校验原始请求并返回归一化请求
func (v *Validator) Validate(req *entity.GenerateRequest) (*entity.NormalizedRequest, error) {
	if req == nil {
		return nil, &Error{Field: "body", Reason: "request body is required"}
	}

	ct := entity.ContentType(strings.TrimSpace(string(req.ContentType)))
	spec, ok := entity.LookupSpec(ct)
	if !ok {
		return nil, &UnsupportedContentTypeError{ContentType: req.ContentType}
	}
	if len(req.Context) == 0 {
		return nil, &Error{Field: "context", Reason: "field required"}
	}

	brief, rawTone, err := v.buildBrief(ct, req.Context, req.Specifications)
	if err != nil {
		return nil, err
	}

	tone := spec.DefaultTone
	if rawTone != nil {
		tone, err = normalizeTone(*rawTone)
		if err != nil {
			return nil, err
		}
	}

	target, err := v.resolveWordTarget(req.Specifications, spec.Words)
	if err != nil {
		return nil, err
	}

	params, err := resolveParams(req.GenerationParams, spec.DefaultParams)
	if err != nil {
		return nil, err
	}

	return &entity.NormalizedRequest{
		ContentType: ct,
		WordTarget:  target,
		Tone:        tone,
		Brief:       brief,
		Params:      params,
	}, nil
}

// normalizeTone 小写并去除首尾空白后检查枚举
func normalizeTone(raw string) (entity.Tone, error) {
	tone := entity.Tone(strings.ToLower(strings.TrimSpace(raw)))
	if !tone.Valid() {
		allowed := make([]string, len(entity.Tones))
		for i, t := range entity.Tones {
			allowed[i] = string(t)
		}
		return "", &Error{
			Field:  "context.tone",
			Reason: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		}
	}
	return tone, nil
}

// resolveParams 补齐生成参数默认值并检查取值范围
func resolveParams(in *entity.GenerationParamsInput, defaults entity.GenerationParams) (entity.GenerationParams, error) {
	out := defaults
	if in == nil {
		return out, nil
	}

	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return out, &Error{Field: "generation_params.temperature", Reason: "must be between 0 and 2"}
		}
		out.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		if *in.MaxTokens < 100 || *in.MaxTokens > 8000 {
			return out, &Error{Field: "generation_params.max_tokens", Reason: "must be between 100 and 8000"}
		}
		out.MaxTokens = *in.MaxTokens
	}
	if in.TopP != nil {
		if *in.TopP < 0 || *in.TopP > 1 {
			return out, &Error{Field: "generation_params.top_p", Reason: "must be between 0 and 1"}
		}
		out.TopP = *in.TopP
	}
	if in.UseFewShot != nil {
		out.UseFewShot = *in.UseFewShot
	}
	return out, nil
}

// bind 将自由格式的 map 解码为强类型结构并执行字段约束
// 未知键会被忽略
func (v *Validator) bind(section string, in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       trimStrings,
	})
	if err != nil {
		return fmt.Errorf("build %s decoder: %w", section, err)
	}
	if err := dec.Decode(in); err != nil {
		return &Error{Field: section, Reason: err.Error()}
	}

	if err := v.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{Field: section + "." + fe.Field(), Reason: describe(fe)}
		}
		return &Error{Field: section, Reason: err.Error()}
	}
	return nil
}

// trimStrings 解码前去除字符串首尾空白
func trimStrings(_ reflect.Type, _ reflect.Type, data any) (any, error) {
	if s, ok := data.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return data, nil
}

// describe 将约束失败翻译为面向调用方的说明
func describe(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s constraint", fe.Tag())
	}
}
