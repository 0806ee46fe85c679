package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"content-ai-api/internal/domain/entity"
)

var (
	wordRangePattern  = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d+)\s*$`)
	wordSinglePattern = regexp.MustCompile(`^\s*(\d+)\s*$`)
)

// wordCountKeys 字数目标可使用的键，按优先级排列
var wordCountKeys = []string{"word_count", "word_target"}

// resolveWordTarget 从 specifications 中解析字数目标
func (v *Validator) resolveWordTarget(spec map[string]any, rng entity.WordRange) (int, error) {
	field, raw, found := "", any(nil), false
	for _, key := range wordCountKeys {
		if val, ok := spec[key]; ok && val != nil {
			field, raw, found = "specifications."+key, val, true
			break
		}
	}
	if !found {
		if rng.Required {
			return 0, &Error{Field: "specifications.word_count", Reason: "field required"}
		}
		return rng.Default, nil
	}

	target, upper, err := v.parseWordTarget(raw)
	if err != nil {
		return 0, &Error{Field: field, Reason: err.Error()}
	}
	// 区间上限同样受类型上限约束
	if rng.Max > 0 && upper > rng.Max {
		return 0, &Error{Field: field, Reason: fmt.Sprintf("must be at most %d words", rng.Max)}
	}
	return target, nil
}

// ParseWordTarget 将 "min-max" 区间或单个整数解析为字数目标
//
// 区间取中点向下取整，且不低于下限；min > max 或 min 低于下限时拒绝。
func (v *Validator) ParseWordTarget(raw any) (int, error) {
	target, _, err := v.parseWordTarget(raw)
	return target, err
}

// parseWordTarget 额外返回请求的上界（区间取 max，单值取自身）
func (v *Validator) parseWordTarget(raw any) (target, upper int, err error) {
	switch val := raw.(type) {
	case int:
		return v.single(val)
	case int64:
		if val > math.MaxInt32 {
			return 0, 0, errWordCountTooLarge
		}
		return v.single(int(val))
	case float64:
		if val != math.Trunc(val) {
			return 0, 0, fmt.Errorf("must be a whole number of words")
		}
		if val > math.MaxInt32 {
			return 0, 0, errWordCountTooLarge
		}
		return v.single(int(val))
	case string:
		if m := wordRangePattern.FindStringSubmatch(val); m != nil {
			lo, err := atoiWords(m[1])
			if err != nil {
				return 0, 0, err
			}
			hi, err := atoiWords(m[2])
			if err != nil {
				return 0, 0, err
			}
			return v.rangeTarget(lo, hi)
		}
		if m := wordSinglePattern.FindStringSubmatch(val); m != nil {
			n, err := atoiWords(m[1])
			if err != nil {
				return 0, 0, err
			}
			return v.single(n)
		}
		return 0, 0, errWordCountFormat
	default:
		return 0, 0, errWordCountFormat
	}
}

var (
	errWordCountFormat   = errors.New("must be a number or a range like \"800-1000\"")
	errWordCountTooLarge = errors.New("word count is too large")
)

// atoiWords 解析数字串，溢出时报错而不是截断
func atoiWords(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n > math.MaxInt32 {
		return 0, errWordCountTooLarge
	}
	return n, nil
}

func (v *Validator) single(n int) (int, int, error) {
	if n < v.minWords {
		return 0, 0, fmt.Errorf("must be at least %d words", v.minWords)
	}
	return n, n, nil
}

func (v *Validator) rangeTarget(lo, hi int) (int, int, error) {
	if lo > hi {
		return 0, 0, fmt.Errorf("range minimum %d exceeds maximum %d", lo, hi)
	}
	if lo < v.minWords {
		return 0, 0, fmt.Errorf("range minimum must be at least %d words", v.minWords)
	}
	return max(v.minWords, lo+(hi-lo)/2), hi, nil
}
