package payload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// Encode validates values and serializes them into the canonical payload: a
// single JSON object whose keys follow the declared spec order. Number
// fields become JSON numbers, everything else JSON strings stored exactly
// as typed, and empty optional fields are omitted. On validation failure
// Encode returns the types.ValidationErrors unchanged.
func Encode(specs []types.FieldSpec, values map[string]string) (string, error) {
	if err := Validate(specs, values); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, spec := range specs {
		value := values[spec.Name]
		if value == "" {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		n++

		key, err := marshalNoEscape(spec.Name)
		if err != nil {
			return "", fmt.Errorf("encode key %q: %w", spec.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		var member any = value
		if spec.Type == types.FieldTypeNumber {
			// Validate has already accepted the number.
			num, err := parseNumber(value)
			if err != nil {
				return "", fmt.Errorf("encode field %q: %w", spec.Name, err)
			}
			member = num
		}
		b, err := marshalNoEscape(member)
		if err != nil {
			return "", fmt.Errorf("encode field %q: %w", spec.Name, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Marshal re-encodes a decoded payload as RFC 8785 canonical JSON, with
// keys sorted. Decoding the result yields the same mapping.
func Marshal(p types.DecodedPayload) (string, error) {
	if p == nil {
		p = types.DecodedPayload{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return string(canonical), nil
}

// marshalNoEscape encodes v as JSON without HTML escaping, so "<", ">",
// and "&" in farmer notes are stored as typed.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
