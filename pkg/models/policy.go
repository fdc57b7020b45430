package models

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/finance/pkg/timeutil"
)

const (
	ruleFieldSeparator = ","
	ruleValueSeparator = "/"

	computeRuleFields = 5
	volumeRuleFields  = 4
)

// RuleValue is the price of one metering unit
type RuleValue struct {
	Value    float64           `json:"value"`
	TimeUnit timeutil.TimeUnit `json:"time_unit"`
}

// RuleContext keys a price rule
type RuleContext struct {
	Item  ResourceItem
	State OrderState
}

// PriceTable is an immutable view of a policy used for one billing pass
type PriceTable struct {
	rules        map[RuleContext]RuleValue
	defaultValue float64
}

// Price returns the price and metering unit for an item in a state.
// Unlisted combinations are charged the default value per millisecond.
func (t PriceTable) Price(item ResourceItem, state OrderState) RuleValue {
	if v, ok := t.rules[RuleContext{Item: item, State: state}]; ok {
		return v
	}
	return RuleValue{Value: t.defaultValue, TimeUnit: timeutil.Milliseconds}
}

// FinancePolicy is a hot-swappable price table
type FinancePolicy struct {
	mu           sync.RWMutex
	name         string
	defaultValue float64
	rules        map[RuleContext]RuleValue
	source       map[string]string
}

// NewFinancePolicy validates rules and builds a policy
func NewFinancePolicy(name string, defaultValue float64, rules map[string]string) (*FinancePolicy, error) {
	parsed, err := ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return &FinancePolicy{
		name:         name,
		defaultValue: defaultValue,
		rules:        parsed,
		source:       copyRules(rules),
	}, nil
}

// Name returns the policy name
func (p *FinancePolicy) Name() string {
	return p.name
}

// Update replaces the rules. The current rules are kept if validation fails.
func (p *FinancePolicy) Update(defaultValue float64, rules map[string]string) error {
	parsed, err := ParseRules(rules)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = parsed
	p.source = copyRules(rules)
	p.defaultValue = defaultValue
	return nil
}

// Table returns the current prices. The returned table is never mutated.
func (p *FinancePolicy) Table() PriceTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PriceTable{rules: p.rules, defaultValue: p.defaultValue}
}

// DefaultValue returns the price for unlisted items
func (p *FinancePolicy) DefaultValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultValue
}

// Rules returns a copy of the rule definitions keyed by rule name
func (p *FinancePolicy) Rules() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyRules(p.source)
}

// String renders the rules as a stable, sorted list
func (p *FinancePolicy) String() string {
	rules := p.Rules()
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:[%s]", name, rules[name]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ParseRules validates rule definitions keyed by rule name
func ParseRules(rules map[string]string) (map[RuleContext]RuleValue, error) {
	parsed := make(map[RuleContext]RuleValue, len(rules))

	for name, rule := range rules {
		ctx, value, err := parseRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		parsed[ctx] = value
	}

	return parsed, nil
}

func parseRule(rule string) (RuleContext, RuleValue, error) {
	fields := strings.Split(strings.TrimSpace(rule), ruleFieldSeparator)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch ResourceType(fields[0]) {
	case ResourceTypeCompute:
		return parseComputeRule(fields)
	case ResourceTypeVolume:
		return parseVolumeRule(fields)
	default:
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: unknown resource item type %q", ErrInvalidParameter, fields[0])
	}
}

func parseComputeRule(fields []string) (RuleContext, RuleValue, error) {
	if len(fields) != computeRuleFields {
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: compute rule needs %d fields, got %d",
			ErrInvalidParameter, computeRuleFields, len(fields))
	}

	state, err := ParseOrderState(fields[1])
	if err != nil {
		return RuleContext{}, RuleValue{}, err
	}
	vcpu, err := strconv.Atoi(fields[2])
	if err != nil {
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: invalid compute vcpu %q", ErrInvalidParameter, fields[2])
	}
	ram, err := strconv.Atoi(fields[3])
	if err != nil {
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: invalid compute ram %q", ErrInvalidParameter, fields[3])
	}
	value, err := parseRuleValue(fields[4])
	if err != nil {
		return RuleContext{}, RuleValue{}, err
	}

	return RuleContext{Item: NewComputeItem(vcpu, ram), State: state}, value, nil
}

func parseVolumeRule(fields []string) (RuleContext, RuleValue, error) {
	if len(fields) != volumeRuleFields {
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: volume rule needs %d fields, got %d",
			ErrInvalidParameter, volumeRuleFields, len(fields))
	}

	state, err := ParseOrderState(fields[1])
	if err != nil {
		return RuleContext{}, RuleValue{}, err
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil {
		return RuleContext{}, RuleValue{}, fmt.Errorf("%w: invalid volume size %q", ErrInvalidParameter, fields[2])
	}
	value, err := parseRuleValue(fields[3])
	if err != nil {
		return RuleContext{}, RuleValue{}, err
	}

	return RuleContext{Item: NewVolumeItem(size), State: state}, value, nil
}

func parseRuleValue(s string) (RuleValue, error) {
	parts := strings.Split(s, ruleValueSeparator)
	if len(parts) != 2 {
		return RuleValue{}, fmt.Errorf("%w: rule value must be <value>/<unit>, got %q", ErrInvalidParameter, s)
	}

	value, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return RuleValue{}, fmt.Errorf("%w: invalid rule value %q", ErrInvalidParameter, parts[0])
	}
	if value < 0 {
		return RuleValue{}, fmt.Errorf("%w: negative rule value %v", ErrInvalidParameter, value)
	}

	unit, err := timeutil.ParseTimeUnit(parts[1])
	if err != nil {
		return RuleValue{}, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	return RuleValue{Value: value, TimeUnit: unit}, nil
}

// DecodeRules decodes an inline rule set. JSON objects are accepted since
// they are valid YAML.
func DecodeRules(data []byte) (map[string]string, error) {
	rules := make(map[string]string)
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: invalid rules document: %v", ErrInvalidParameter, err)
	}
	return rules, nil
}

// LoadRulesFile reads a YAML mapping of rule name to rule definition
func LoadRulesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read rules file %s: %v", ErrInvalidParameter, path, err)
	}
	return DecodeRules(data)
}

func copyRules(rules map[string]string) map[string]string {
	out := make(map[string]string, len(rules))
	for k, v := range rules {
		out[k] = v
	}
	return out
}
