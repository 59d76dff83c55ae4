// Package schema parses an event type's raw payload descriptor into typed
// field specs. Two descriptor shapes exist in the catalog: a flat array of
// display labels (the legacy form most event types still use) and an array
// of structured field objects.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// rawSchema is the descriptor after shape detection and before
// normalization. Exactly one of labelsOnly or structured.
type rawSchema interface {
	normalize() ([]types.FieldSpec, error)
}

// labelsOnly is the legacy descriptor: display labels with no metadata.
type labelsOnly []string

// structured is the descriptor with full per-field metadata.
type structured []fieldSpecDTO

// fieldSpecDTO mirrors one structured descriptor entry as served by the
// catalog. Pointers distinguish absent from zero.
type fieldSpecDTO struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Type        types.FieldType `json:"type"`
	Required    bool            `json:"required"`
	Placeholder string          `json:"placeholder"`
	Options     []optionDTO     `json:"options"`
	Min         *float64        `json:"min"`
	Max         *float64        `json:"max"`
}

type optionDTO struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DeriveKey turns a display label into a machine key: lower-cased, with
// each whitespace run replaced by "_". Leading and trailing whitespace is
// dropped. Punctuation is kept, so "Water volume (l)" becomes
// "water_volume_(l)".
func DeriveKey(label string) string {
	lower := cases.Lower(language.Und)
	return strings.Join(strings.Fields(lower.String(label)), "_")
}

// Parse converts a raw descriptor into field specs in declared order. An
// empty descriptor yields no fields. On any failure Parse returns an empty
// slice and an error wrapping ErrInvalidDescriptor; callers treat the event
// type as having no structured fields.
func Parse(raw string) ([]types.FieldSpec, error) {
	rs, err := decodeRaw(raw)
	if err != nil {
		return []types.FieldSpec{}, err
	}
	specs, err := rs.normalize()
	if err != nil {
		return []types.FieldSpec{}, err
	}
	if err := checkUniqueKeys(specs); err != nil {
		return []types.FieldSpec{}, err
	}
	return specs, nil
}

// ParseEventType parses the descriptor attached to et.
func ParseEventType(et *types.EventType) ([]types.FieldSpec, error) {
	if et == nil {
		return []types.FieldSpec{}, nil
	}
	specs, err := Parse(et.PayloadFields)
	if err != nil {
		return specs, fmt.Errorf("event type %q: %w", et.Name, err)
	}
	return specs, nil
}

// Lookup returns the field spec with the given key.
func Lookup(specs []types.FieldSpec, key string) (types.FieldSpec, bool) {
	for _, s := range specs {
		if s.Name == key {
			return s, true
		}
	}
	return types.FieldSpec{}, false
}

// decodeRaw detects the descriptor shape. Arrays must be homogeneous:
// all strings or all objects.
func decodeRaw(raw string) (rawSchema, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return labelsOnly{}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDescriptor, err)
	}
	if len(elems) == 0 {
		return labelsOnly{}, nil
	}

	var labels, objects int
	for _, e := range elems {
		switch firstByte(e) {
		case '"':
			labels++
		case '{':
			objects++
		default:
			return nil, fmt.Errorf("%w: descriptor entries must be labels or objects", types.ErrInvalidDescriptor)
		}
	}

	switch {
	case labels == len(elems):
		var ls labelsOnly
		if err := json.Unmarshal([]byte(trimmed), &ls); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidDescriptor, err)
		}
		return ls, nil
	case objects == len(elems):
		if err := validateStructured([]byte(trimmed)); err != nil {
			return nil, err
		}
		var dtos structured
		if err := json.Unmarshal([]byte(trimmed), &dtos); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidDescriptor, err)
		}
		return dtos, nil
	default:
		return nil, fmt.Errorf("%w: descriptor mixes labels and objects", types.ErrInvalidDescriptor)
	}
}

func firstByte(b []byte) byte {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// normalize synthesizes a required text field per label.
func (l labelsOnly) normalize() ([]types.FieldSpec, error) {
	specs := make([]types.FieldSpec, 0, len(l))
	for i, label := range l {
		key := DeriveKey(label)
		if key == "" {
			return nil, fmt.Errorf("%w: label %d is blank", types.ErrInvalidDescriptor, i)
		}
		specs = append(specs, types.FieldSpec{
			Name:     key,
			Label:    strings.TrimSpace(label),
			Type:     types.FieldTypeText,
			Required: true,
		})
	}
	return specs, nil
}

func (s structured) normalize() ([]types.FieldSpec, error) {
	specs := make([]types.FieldSpec, 0, len(s))
	for i, d := range s {
		label := strings.TrimSpace(d.Label)
		if label == "" {
			return nil, fmt.Errorf("%w: field %d has a blank label", types.ErrInvalidDescriptor, i)
		}
		name := strings.TrimSpace(d.Name)
		if name == "" {
			name = DeriveKey(label)
		}
		ft := d.Type
		if ft == "" {
			ft = types.FieldTypeText
		}
		if !types.IsValidFieldType(ft) {
			return nil, fmt.Errorf("%w: field %q has unknown type %q", types.ErrInvalidDescriptor, name, ft)
		}

		spec := types.FieldSpec{
			Name:        name,
			Label:       label,
			Type:        ft,
			Required:    d.Required,
			Placeholder: d.Placeholder,
		}

		switch ft {
		case types.FieldTypeSelect:
			if len(d.Options) == 0 {
				return nil, fmt.Errorf("%w: select field %q has no options", types.ErrInvalidDescriptor, name)
			}
			spec.Options = make([]types.Option, 0, len(d.Options))
			for _, o := range d.Options {
				optLabel := o.Label
				if optLabel == "" {
					optLabel = o.Value
				}
				spec.Options = append(spec.Options, types.Option{Label: optLabel, Value: o.Value})
			}
		case types.FieldTypeNumber:
			if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
				return nil, fmt.Errorf("%w: field %q has min %v greater than max %v", types.ErrInvalidDescriptor, name, *d.Min, *d.Max)
			}
			spec.Min = d.Min
			spec.Max = d.Max
		}

		specs = append(specs, spec)
	}
	return specs, nil
}

// checkUniqueKeys rejects descriptors where two fields share a key, which
// happens when labels differ only in case or spacing.
func checkUniqueKeys(specs []types.FieldSpec) error {
	seen := make(map[string]string, len(specs))
	for _, s := range specs {
		if prev, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: %w: %q and %q both map to %q",
				types.ErrInvalidDescriptor, types.ErrDuplicateFieldKey, prev, s.Label, s.Name)
		}
		seen[s.Name] = s.Label
	}
	return nil
}
