// Package types 定义定价算法共享的基础枚举。
package types

import (
	"strings"

	"github.com/wyfcoding/optionlab/xerrors"
)

// OptionType 定义期权类型，仅有看涨与看跌两个取值。
type OptionType string

const (
	// OptionTypeCall 看涨期权。
	OptionTypeCall OptionType = "CALL"
	// OptionTypePut 看跌期权。
	OptionTypePut OptionType = "PUT"
)

// ParseOptionType 解析期权类型，大小写不敏感，其余取值一律拒绝。
func ParseOptionType(s string) (OptionType, error) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(s))) {
	case OptionTypeCall:
		return OptionTypeCall, nil
	case OptionTypePut:
		return OptionTypePut, nil
	default:
		return "", xerrors.ErrInvalidOptionType.Clone().WithDetail("unsupported option type %q", s)
	}
}

// Valid 报告是否为受支持的期权类型。
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// IsCall 报告是否为看涨期权。
func (t OptionType) IsCall() bool {
	return t == OptionTypeCall
}

// Label 返回展示用的小写名称。
func (t OptionType) Label() string {
	return strings.ToLower(string(t))
}

func (t OptionType) String() string {
	return string(t)
}
