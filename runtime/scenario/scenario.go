// Package scenario loads and holds the declarative, per-scenario
// configuration (§3 "Scenario descriptor", §6 "Scenario descriptor format")
// that parameterises the single shared engine: field order, checklist
// definitions, FSM states, mandatory triggers, and risk rule sets. Scenario
// registries are loaded once at process start and shared read-only (§5);
// new scenarios are added by shipping descriptors, never by code changes
// (§9 design note).
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// ChecklistField is one P1/P2 field definition from checklist.yaml.
	ChecklistField struct {
		Key        string   `yaml:"key"`
		Type       string   `yaml:"type"`
		Options    []string `yaml:"options,omitempty"`
		Required   bool     `yaml:"required"`
		AskPrompt  string   `yaml:"ask_prompt"`
	}

	// FSMStateDescriptor is one phase of the scenario's response procedure
	// (§3 "FSM state descriptor").
	FSMStateDescriptor struct {
		ID            string   `yaml:"id"`
		Order         int      `yaml:"order"`
		Name          string   `yaml:"name"`
		Preconditions []string `yaml:"preconditions"`
		NextStates    []string `yaml:"next_states"`
	}

	// MandatoryTrigger is a declarative obligation evaluated by the FSM
	// validator (§3 "Mandatory trigger").
	MandatoryTrigger struct {
		ID         string         `yaml:"id"`
		Condition  string         `yaml:"condition"`
		Action     string         `yaml:"action"`
		Params     map[string]any `yaml:"params,omitempty"`
		CheckField string         `yaml:"check_field"`
		Priority   int            `yaml:"priority"`
	}

	// manifest is manifest.yaml.
	manifest struct {
		ID       string   `yaml:"id"`
		Keywords []string `yaml:"keywords"`
		Version  string   `yaml:"version"`
	}

	// promptDoc is prompt.yaml.
	promptDoc struct {
		SystemPrompt string            `yaml:"system_prompt"`
		FieldOrder   []string          `yaml:"field_order"`
		FieldNames   map[string]string `yaml:"field_names"`
		AskPrompts   map[string]string `yaml:"ask_prompts"`
	}

	// checklistDoc is checklist.yaml.
	checklistDoc struct {
		P1Fields []ChecklistField `yaml:"p1_fields"`
		P2Fields []ChecklistField `yaml:"p2_fields"`
	}

	// configDoc is config.yaml.
	configDoc struct {
		MandatoryTriggers []MandatoryTrigger `yaml:"mandatory_triggers"`
		RiskRules         riskRulesRef       `yaml:"risk_rules"`
		PropagationTable  []PropagationRule  `yaml:"propagation_table,omitempty"`
		CleanupTimeTable  []CleanupTimeRow   `yaml:"cleanup_time_table,omitempty"`
	}

	// PropagationRule keys the §4.6 BFS radius/runway-inclusion table by
	// (fluid, level).
	PropagationRule struct {
		Fluid         string `yaml:"fluid"`
		Level         string `yaml:"level"`
		RadiusHops    int    `yaml:"radius_hops"`
		AffectsRunway bool   `yaml:"affects_runway"`
	}

	// CleanupTimeRow is one entry of the §4.8 3-axis base-minutes table
	// (fluid type x leak size x facility class).
	CleanupTimeRow struct {
		Fluid         string `yaml:"fluid"`
		LeakSize      string `yaml:"leak_size"`
		FacilityClass string `yaml:"facility_class"`
		BaseMinutes   int    `yaml:"base_minutes"`
	}

	// riskRulesRef is either an inline rule document or an !include-style
	// file reference. yaml.v3 has no native !include tag handling, so the
	// convention here is a mapping whose `file:` key names a sibling file
	// when rules are not given under `inline:` (mirrors the corpus' BSRC.json/fod_rule.json
	// external rule-set files, §6).
	riskRulesRef struct {
		File   string `yaml:"file,omitempty"`
		Inline any    `yaml:"inline,omitempty"`
	}

	// Descriptor is the fully-loaded, immutable configuration for one
	// scenario.
	Descriptor struct {
		ID           string
		Keywords     []string
		Version      string
		SystemPrompt string
		FieldOrder   []string
		FieldNames   map[string]string
		AskPrompts   map[string]string
		P1Fields     []ChecklistField
		P2Fields     []ChecklistField
		FSMStates    []FSMStateDescriptor
		MandatoryTriggers []MandatoryTrigger
		PropagationTable  []PropagationRule
		CleanupTimeTable  []CleanupTimeRow
		// RiskRuleSetPath is the on-disk path of the risk rule document
		// (oil-spill priority table or weighted-JSON rule set) to be parsed
		// by runtime/rules. Empty when rules were inlined into config.yaml.
		RiskRuleSetPath string
		RiskRulesInline any
		// Evaluator names which rules.Evaluator kind applies: "priority" or
		// "weighted" (§4.5: "scenario chooses one").
		Evaluator string
	}

	// Registry holds every loaded scenario descriptor, keyed by id.
	Registry struct {
		byID map[string]*Descriptor
		order []string
	}
)

// Load reads every scenario subdirectory of root (one directory per
// scenario id, per §6) and returns a populated Registry. A malformed
// descriptor is a fatal configuration error (§7): Load returns an error
// rather than a partial registry.
func Load(root string) (*Registry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", root, err)
	}
	reg := &Registry{byID: map[string]*Descriptor{}}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		d, err := loadOne(dir)
		if err != nil {
			return nil, fmt.Errorf("scenario: %s: %w", e.Name(), err)
		}
		if _, dup := reg.byID[d.ID]; dup {
			return nil, fmt.Errorf("scenario: duplicate id %q", d.ID)
		}
		reg.byID[d.ID] = d
		reg.order = append(reg.order, d.ID)
	}
	sort.Strings(reg.order)
	return reg, nil
}

func loadOne(dir string) (*Descriptor, error) {
	var man manifest
	if err := readYAML(filepath.Join(dir, "manifest.yaml"), &man); err != nil {
		return nil, err
	}
	var prompt promptDoc
	if err := readYAML(filepath.Join(dir, "prompt.yaml"), &prompt); err != nil {
		return nil, err
	}
	var checklist checklistDoc
	if err := readYAML(filepath.Join(dir, "checklist.yaml"), &checklist); err != nil {
		return nil, err
	}
	var fsmStates []FSMStateDescriptor
	if err := readYAML(filepath.Join(dir, "fsm_states.yaml"), &fsmStates); err != nil {
		return nil, err
	}
	if err := validateFSM(fsmStates); err != nil {
		return nil, err
	}
	var cfg configDoc
	if err := readYAML(filepath.Join(dir, "config.yaml"), &cfg); err != nil {
		return nil, err
	}

	evaluator := "priority"
	if cfg.RiskRules.File != "" && strings.Contains(strings.ToLower(cfg.RiskRules.File), "json") {
		evaluator = "weighted"
	} else if cfg.RiskRules.Inline != nil {
		if m, ok := cfg.RiskRules.Inline.(map[string]any); ok {
			if _, hasRules := m["rule_set_id"]; hasRules {
				evaluator = "weighted"
			}
		}
	}

	return &Descriptor{
		ID:                man.ID,
		Keywords:          man.Keywords,
		Version:           man.Version,
		SystemPrompt:      prompt.SystemPrompt,
		FieldOrder:        prompt.FieldOrder,
		FieldNames:        prompt.FieldNames,
		AskPrompts:        prompt.AskPrompts,
		P1Fields:          checklist.P1Fields,
		P2Fields:          checklist.P2Fields,
		FSMStates:         fsmStates,
		MandatoryTriggers: cfg.MandatoryTriggers,
		PropagationTable:  cfg.PropagationTable,
		CleanupTimeTable:  cfg.CleanupTimeTable,
		RiskRuleSetPath:   resolveRuleFile(dir, cfg.RiskRules.File),
		RiskRulesInline:   cfg.RiskRules.Inline,
		Evaluator:         evaluator,
	}, nil
}

func resolveRuleFile(dir, file string) string {
	if file == "" {
		return ""
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// validateFSM enforces the §3 FSM state descriptor invariants: a unique
// INIT, a unique COMPLETED, and at most one edge into COMPLETED.
func validateFSM(states []FSMStateDescriptor) error {
	initCount, completedCount, edgesIntoCompleted := 0, 0, 0
	for _, s := range states {
		if s.ID == "INIT" {
			initCount++
		}
		if s.ID == "COMPLETED" {
			completedCount++
		}
		for _, n := range s.NextStates {
			if n == "COMPLETED" {
				edgesIntoCompleted++
			}
		}
	}
	if initCount != 1 {
		return fmt.Errorf("fsm_states: expected exactly one INIT state, found %d", initCount)
	}
	if completedCount != 1 {
		return fmt.Errorf("fsm_states: expected exactly one COMPLETED state, found %d", completedCount)
	}
	if edgesIntoCompleted > 1 {
		return fmt.Errorf("fsm_states: expected at most one edge into COMPLETED, found %d", edgesIntoCompleted)
	}
	return nil
}

// defaultPropagation is the scenario-independent fallback used when a
// scenario's propagation_table has no row for the (fluid, level) pair,
// including when config.yaml omits the table (§9 Open Question: "the
// scenario-specific table is authoritative; if absent, HYDRAULIC+HIGH ->
// radius 2, affects_runway=false"). Other (fluid, level) combinations absent
// from both the scenario table and this default fall back to radius 1,
// affects_runway=false, the most conservative non-zero spread.
var defaultPropagation = map[string]PropagationRule{
	"HYDRAULIC|HIGH": {Fluid: "HYDRAULIC", Level: "HIGH", RadiusHops: 2, AffectsRunway: false},
}

// Propagation resolves the BFS radius/runway-inclusion rule for (fluid,
// level), preferring the scenario's own table (§4.6, §9 Open Question).
func (d *Descriptor) Propagation(fluid, level string) (radiusHops int, affectsRunway bool) {
	for _, r := range d.PropagationTable {
		if r.Fluid == fluid && r.Level == level {
			return r.RadiusHops, r.AffectsRunway
		}
	}
	if r, ok := defaultPropagation[fluid+"|"+level]; ok {
		return r.RadiusHops, r.AffectsRunway
	}
	return 1, false
}

// defaultCleanupBaseMinutes is the scenario-independent flat fallback base
// time (§4.8), used when no row of the scenario's cleanup_time_table
// matches, including when config.yaml omits the table.
var defaultCleanupBaseMinutes = 45

// CleanupBaseMinutes resolves the base minutes for (fluid, leakSize,
// facilityClass) from the scenario's own table, falling back to a flat
// default when no row matches.
func (d *Descriptor) CleanupBaseMinutes(fluid, leakSize, facilityClass string) int {
	for _, r := range d.CleanupTimeTable {
		if r.Fluid == fluid && r.LeakSize == leakSize && r.FacilityClass == facilityClass {
			return r.BaseMinutes
		}
	}
	return defaultCleanupBaseMinutes
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns every registered scenario id in lexicographic order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Identify performs keyword matching over msg against every scenario's
// manifest keywords (§4.1 step 1). Ties are broken by the count of distinct
// matching keywords, then by lexicographically-lower id. Falls back to
// "oil_spill" when nothing matches.
func (r *Registry) Identify(msg string) string {
	type candidate struct {
		id      string
		matches int
	}
	var best *candidate
	for _, id := range r.order {
		d := r.byID[id]
		matches := 0
		for _, kw := range d.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(msg, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		c := candidate{id: id, matches: matches}
		if best == nil || c.matches > best.matches || (c.matches == best.matches && c.id < best.id) {
			best = &c
		}
	}
	if best == nil {
		return "oil_spill"
	}
	return best.id
}
