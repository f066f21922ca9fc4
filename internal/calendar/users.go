package calendar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UserIDsMatch compares user identifiers that may arrive as strings or
// numbers. Both sides are stringified and trimmed. Empty IDs never match.
func UserIDsMatch(a, b any) bool {
	sa, sb := userIDString(a), userIDString(b)
	return sa != "" && sa == sb
}

func userIDString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return strings.TrimSpace(x.String())
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
