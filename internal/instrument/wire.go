package instrument

import (
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// FormatArgs renders evaluated call arguments as the single text line most
// instrument protocols expect: arguments joined by single spaces, numbers
// without trailing zeros.
func FormatArgs(args []cty.Value) string {
	parts := make([]string, 0, len(args))
	for _, v := range args {
		parts = append(parts, formatValue(v))
	}
	return strings.Join(parts, " ")
}

func formatValue(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() {
		return ""
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case cty.Bool:
		return strconv.FormatBool(v.True())
	}
	return v.GoString()
}

// ParseResponse interprets an instrument's textual reply: numeric replies
// become numbers, everything else is the trimmed string.
func ParseResponse(s string) cty.Value {
	trimmed := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return cty.NumberFloatVal(f)
	}
	return cty.StringVal(trimmed)
}
