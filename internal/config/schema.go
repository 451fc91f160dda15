package config

import (
	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
	"github.com/gyaneshwarpardhi/cardflow/internal/trigger"
)

// Deck is the top-level YAML structure.
type Deck struct {
	Version string     `yaml:"version"`
	Engine  EngineConf `yaml:"engine"`
	// Defines maps extra define names onto built-in node kinds.
	Defines map[string]string `yaml:"defines"`
	Events  []EventDef        `yaml:"events"`
	Cards   []CardDef         `yaml:"cards"`
	Script  []Step            `yaml:"script"`
}

// EngineConf holds session settings. Environment variables override the file.
type EngineConf struct {
	MaxFlowSteps int    `yaml:"max_flow_steps" env:"CARDFLOW_MAX_FLOW_STEPS"`
	LogLevel     string `yaml:"log_level" env:"CARDFLOW_LOG_LEVEL"`
	Workers      int    `yaml:"workers" env:"CARDFLOW_WORKERS"`
	QueueDepth   int    `yaml:"queue_depth" env:"CARDFLOW_QUEUE_DEPTH"`
	StorePath    string `yaml:"store_path" env:"CARDFLOW_STORE_PATH"`
	Listen       string `yaml:"listen" env:"CARDFLOW_LISTEN"`
}

// EventDef gives an event kind a graph body.
type EventDef struct {
	Kind  string           `yaml:"kind"`
	Entry int              `yaml:"entry"`
	Graph graph.Serialized `yaml:"graph"`
}

// CardDef is a card in play with its effects.
type CardDef struct {
	ID      int                    `yaml:"id"`
	Name    string                 `yaml:"name"`
	Props   map[string]interface{} `yaml:"props"`
	Effects []EffectDef            `yaml:"effects"`
}

// EffectDef is a graph-scripted ability.
type EffectDef struct {
	Name           string           `yaml:"name"`
	On             []trigger.Time   `yaml:"on"`
	Priority       int              `yaml:"priority"`
	Condition      string           `yaml:"condition"`
	ConditionEntry int              `yaml:"condition_entry"`
	Entry          int              `yaml:"entry"`
	Times          int              `yaml:"times"`
	Graph          graph.Serialized `yaml:"graph"`
	// PriorityPort names a value input computing the priority; Priority is
	// the fallback.
	PriorityPort graph.PortRef `yaml:"priority_port"`
	OnEnable     int           `yaml:"on_enable"`
	OnDisable    int           `yaml:"on_disable"`
}

// Step is one scripted action. Exactly one of Raise, SetProp, Resume or
// RevertTo is set; Expect is checked after the action.
type Step struct {
	Label    string                 `yaml:"label,omitempty"`
	Raise    string                 `yaml:"raise,omitempty"`
	Vars     map[string]interface{} `yaml:"vars,omitempty"`
	SetProp  *PropValue             `yaml:"set_prop,omitempty"`
	Resume   *Input                 `yaml:"resume,omitempty"`
	RevertTo string                 `yaml:"revert_to,omitempty"` // label of an earlier step
	Expect   []PropValue            `yaml:"expect,omitempty"`
}

// PropValue names a card property and a value.
type PropValue struct {
	Card  int         `yaml:"card"`
	Prop  string      `yaml:"prop"`
	Value interface{} `yaml:"value"`
}

// Input is the value handed to a suspended event.
type Input struct {
	Value interface{} `yaml:"value"`
}

// Action names what the step does.
func (s Step) Action() string {
	switch {
	case s.Raise != "":
		return "raise"
	case s.SetProp != nil:
		return "set_prop"
	case s.Resume != nil:
		return "resume"
	case s.RevertTo != "":
		return "revert_to"
	}
	return ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Raise != "", s.SetProp != nil, s.Resume != nil, s.RevertTo != ""} {
		if set {
			n++
		}
	}
	return n
}
