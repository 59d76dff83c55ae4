package payload

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// maxDecodePasses bounds how many JSON layers Decode peels off. Some stored
// events were encoded twice; nothing deeper has been seen.
const maxDecodePasses = 2

// Decode parses a stored payload whose encoding depth is unknown. Each pass
// parses the current string as JSON; if the result is again a string, the
// next pass parses that. After at most maxDecodePasses passes the result
// must be a JSON object, otherwise Decode returns types.ErrUndecodable.
//
// Numbers decode to float64, booleans to "true" or "false", and null
// members are dropped. Nested arrays and objects are kept as their compact
// JSON text so every value is a string or a number.
func Decode(stored string) (types.DecodedPayload, error) {
	var cur any = stored
	for pass := 0; pass < maxDecodePasses; pass++ {
		s, ok := cur.(string)
		if !ok {
			break
		}
		var next any
		if err := json.Unmarshal([]byte(s), &next); err != nil {
			return nil, fmt.Errorf("%w: pass %d: %v", types.ErrUndecodable, pass+1, err)
		}
		cur = next
	}

	obj, ok := cur.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: decoded to %s", types.ErrUndecodable, jsonKind(cur))
	}

	out := make(types.DecodedPayload, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
			continue
		case string, float64:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("%w: member %q: %v", types.ErrUndecodable, k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

// Describe decodes stored and, when that fails, falls back to the raw text
// as an opaque description. ok reports whether decoding succeeded.
func Describe(stored string) (p types.DecodedPayload, description string, ok bool) {
	p, err := Decode(stored)
	if err != nil {
		return nil, stored, false
	}
	return p, "", true
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
