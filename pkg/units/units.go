// Package units knows which payload fields of an event type carry a
// quantity and the unit that quantity is measured in. Units usually travel
// in the field label itself, as a parenthesized suffix: "Water volume (l)".
package units

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mesh-intelligence/carechain/pkg/schema"
)

// Rule lists the quantity fields of one event type, by label, and the unit
// to fall back on when no label carries one.
type Rule struct {
	AmountLabels []string `mapstructure:"fields" yaml:"fields" json:"fields"`
	DefaultUnit  string   `mapstructure:"unit" yaml:"unit" json:"unit"`
}

// Resolution is the quantity layout of one event type.
type Resolution struct {
	AmountFieldKeys []string // Derived payload keys, in rule order.
	AmountLabels    []string // Labels the keys were derived from, same order.
	Unit            string
}

// DefaultRules is the built-in quantity table, keyed by event type name.
var DefaultRules = map[string]Rule{
	"Irrigation":    {AmountLabels: []string{"Water volume (l)"}, DefaultUnit: "l"},
	"Fertilization": {AmountLabels: []string{"Rate"}, DefaultUnit: "g/ha"},
	"Spraying":      {AmountLabels: []string{"Dose (l/ha)"}, DefaultUnit: "l/ha"},
	"Sowing":        {AmountLabels: []string{"Seed quantity (kg)"}, DefaultUnit: "kg"},
	"Harvest":       {AmountLabels: []string{"Yield (kg)"}, DefaultUnit: "kg"},
}

var unitSuffix = regexp.MustCompile(`\(([^()]*)\)\s*$`)

// Resolver maps event type names to quantity resolutions. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	rules map[string]Rule // keyed by folded name
}

// NewResolver builds a resolver from DefaultRules overlaid with overrides.
// An override replaces the built-in rule of the same (case-insensitive)
// name.
func NewResolver(overrides map[string]Rule) *Resolver {
	r := &Resolver{rules: make(map[string]Rule, len(DefaultRules)+len(overrides))}
	for name, rule := range DefaultRules {
		r.rules[foldName(name)] = rule
	}
	for name, rule := range overrides {
		r.rules[foldName(name)] = rule
	}
	return r
}

// Resolve returns the quantity fields and unit for an event type name.
// Unknown names resolve to an empty resolution: no quantities are tracked.
//
// The unit is taken from the first amount label with a parenthesized
// suffix, else the rule's default, else "".
func (r *Resolver) Resolve(eventTypeName string) Resolution {
	rule, ok := r.rules[foldName(eventTypeName)]
	if !ok {
		return Resolution{AmountFieldKeys: []string{}, AmountLabels: []string{}}
	}

	res := Resolution{
		AmountFieldKeys: make([]string, 0, len(rule.AmountLabels)),
		AmountLabels:    make([]string, 0, len(rule.AmountLabels)),
	}
	for _, label := range rule.AmountLabels {
		res.AmountFieldKeys = append(res.AmountFieldKeys, schema.DeriveKey(label))
		res.AmountLabels = append(res.AmountLabels, label)
		if res.Unit == "" {
			res.Unit = UnitFromLabel(label)
		}
	}
	if res.Unit == "" {
		res.Unit = rule.DefaultUnit
	}
	return res
}

// UnitFromLabel returns the content of a trailing parenthesized suffix, or
// "" when the label has none.
func UnitFromLabel(label string) string {
	m := unitSuffix.FindStringSubmatch(label)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func foldName(name string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(name))
}
