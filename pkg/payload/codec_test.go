package payload

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

var irrigationSpecs = []types.FieldSpec{
	{Name: "volume", Label: "Water volume (l)", Type: types.FieldTypeNumber, Required: true, Min: float(0), Max: float(10000)},
	{Name: "method", Label: "Method", Type: types.FieldTypeSelect, Required: true, Options: []types.Option{
		{Label: "Drip", Value: "drip"}, {Label: "Flood", Value: "flood"}, {Label: "Sprinkler", Value: "sprinkler"},
	}},
	{Name: "notes", Label: "Notes", Type: types.FieldTypeTextarea},
}

func TestEncodeFollowsSpecOrder(t *testing.T) {
	got, err := Encode(irrigationSpecs, map[string]string{
		"notes":  "north <field> & orchard",
		"method": "drip",
		"volume": "12.50",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"volume":12.5,"method":"drip","notes":"north <field> & orchard"}`, got)
}

func TestEncodeOmitsBlankOptionalAndUnknownKeys(t *testing.T) {
	got, err := Encode(irrigationSpecs, map[string]string{
		"volume": "3",
		"method": "flood",
		"notes":  "",
		"extra":  "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"volume":3,"method":"flood"}`, got)
}

func TestEncodeKeepsTextAsTyped(t *testing.T) {
	values := map[string]string{"volume": " 7 ", "method": "drip", "notes": "  row 3\n"}
	got, err := Encode(irrigationSpecs, values)
	require.NoError(t, err)
	assert.Equal(t, `{"volume":7,"method":"drip","notes":"  row 3\n"}`, got)

	decoded, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, "  row 3\n", decoded["notes"])
	assert.Equal(t, 7.0, decoded["volume"])
}

func TestEncodeReturnsValidationErrors(t *testing.T) {
	got, err := Encode(irrigationSpecs, map[string]string{"volume": "-3"})
	assert.Empty(t, got)

	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, types.OutOfRange, verrs["volume"].Kind)
	assert.Equal(t, types.MissingField, verrs["method"].Kind)
}

func TestEncodeEmptySpecs(t *testing.T) {
	got, err := Encode(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestEncodeIsSingleEncoded(t *testing.T) {
	got, err := Encode(irrigationSpecs, map[string]string{"volume": "1", "method": "drip"})
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &obj), "canonical payload parses to an object in one pass")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   types.DecodedPayload
	}{
		{
			name:   "canonical",
			stored: `{"volume":12.5,"method":"drip"}`,
			want:   types.DecodedPayload{"volume": 12.5, "method": "drip"},
		},
		{
			name:   "double encoded",
			stored: `"{\"rate\":\"10 g/ha\"}"`,
			want:   types.DecodedPayload{"rate": "10 g/ha"},
		},
		{
			name:   "nulls dropped and nested values kept as text",
			stored: `{"a":null,"b":[1,2],"c":{"d":true},"e":false}`,
			want:   types.DecodedPayload{"b": "[1,2]", "c": `{"d":true}`, "e": "false"},
		},
		{
			name:   "empty object",
			stored: `{}`,
			want:   types.DecodedPayload{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.stored)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUndecodable(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{"plain text", "watered the north field"},
		{"empty", ""},
		{"array", `[{"rate":"1"}]`},
		{"number", `42`},
		{"null", `null`},
		{"string of plain text", `"just a note"`},
		{"double encoded array", `"[1,2]"`},
		{"triple encoded", `"\"{\\\"rate\\\":\\\"10 g/ha\\\"}\""`},
		{"truncated", `{"rate":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.stored)
			assert.ErrorIs(t, err, types.ErrUndecodable)
			assert.Nil(t, got)
		})
	}
}

func TestDescribe(t *testing.T) {
	p, desc, ok := Describe(`{"rate":"1 kg"}`)
	assert.True(t, ok)
	assert.Empty(t, desc)
	assert.Equal(t, types.DecodedPayload{"rate": "1 kg"}, p)

	p, desc, ok = Describe("free text note")
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.Equal(t, "free text note", desc)
}

func TestMarshalSortsKeys(t *testing.T) {
	got, err := Marshal(types.DecodedPayload{"z": "last", "a": 1.5, "m": "true"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1.5,"m":"true","z":"last"}`, got)

	got, err = Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	options := []string{"drip", "flood", "sprinkler"}

	properties.Property("decode(encode(values)) equals values", prop.ForAll(
		func(volume float64, pick int, notes string) bool {
			values := map[string]string{
				"volume": strconv.FormatFloat(volume, 'f', -1, 64),
				"method": options[pick],
				"notes":  notes,
			}
			if Validate(irrigationSpecs, values) != nil {
				return false
			}
			encoded, err := Encode(irrigationSpecs, values)
			if err != nil {
				return false
			}
			decoded, err := Decode(encoded)
			if err != nil {
				return false
			}

			want := types.DecodedPayload{"volume": volume, "method": options[pick]}
			if notes != "" {
				want["notes"] = notes
			}
			return assert.ObjectsAreEqual(want, decoded)
		},
		gen.Float64Range(0, 10000),
		gen.IntRange(0, len(options)-1),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestDecodeIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode is stable under re-encoding", prop.ForAll(
		func(keys []string, texts []string, nums []float64, doubleEncode bool) bool {
			obj := map[string]any{}
			for i, k := range keys {
				if k == "" {
					continue
				}
				if i < len(nums) && i%2 == 0 {
					obj[k] = nums[i]
				} else if i < len(texts) {
					obj[k] = texts[i]
				}
			}
			raw, err := json.Marshal(obj)
			if err != nil {
				return false
			}
			stored := string(raw)
			if doubleEncode {
				again, err := json.Marshal(stored)
				if err != nil {
					return false
				}
				stored = string(again)
			}

			first, err := Decode(stored)
			if err != nil {
				return false
			}
			reencoded, err := Marshal(first)
			if err != nil {
				return false
			}
			second, err := Decode(reencoded)
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(first, second)
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.Float64Range(-1e9, 1e9)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
