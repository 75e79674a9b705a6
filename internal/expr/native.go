package expr

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Native converts a cty value into a plain Go value suitable for report
// serialization. Numbers become float64, strings and bools their obvious
// counterparts; anything structured is round-tripped through ctyjson.
func Native(v cty.Value) any {
	if v == cty.NilVal || v.IsNull() {
		return nil
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case cty.String:
		return v.AsString()
	case cty.Bool:
		return v.True()
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return json.RawMessage(raw)
}

// FormatValue renders a cty value as a short human-readable string for log
// attributes.
func FormatValue(v cty.Value) string {
	native := Native(v)
	switch n := native.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return formatFloat(n)
	case bool:
		if n {
			return "true"
		}
		return "false"
	case json.RawMessage:
		return string(n)
	default:
		return fmt.Sprintf("%v", n)
	}
}

func formatFloat(f float64) string {
	// %g keeps integers free of trailing zeros while preserving precision.
	return fmt.Sprintf("%g", f)
}
