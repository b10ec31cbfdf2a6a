// Package wizard implements the three-step learning flow: choose a topic and
// grade level, pick a generated module, read its generated content.
package wizard

import (
	"fmt"
	"slices"
)

// Step is one of the wizard's three screens.
type Step int

const (
	StepTopicSelection Step = iota
	StepModuleSelection
	StepContentView
)

func (s Step) String() string {
	switch s {
	case StepTopicSelection:
		return "topic_selection"
	case StepModuleSelection:
		return "module_selection"
	case StepContentView:
		return "content_view"
	default:
		return "unknown"
	}
}

// MarshalText encodes the step by name so stored snapshots stay readable.
func (s Step) MarshalText() ([]byte, error) {
	if s < StepTopicSelection || s > StepContentView {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	switch string(b) {
	case "topic_selection":
		*s = StepTopicSelection
	case "module_selection":
		*s = StepModuleSelection
	case "content_view":
		*s = StepContentView
	default:
		return fmt.Errorf("unknown step %q", string(b))
	}
	return nil
}

// Module is a generated unit of learning content. Modules have no stable id;
// they are identified by position in the generated list.
type Module struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// State is the full wizard state. Loading and Error overlay whatever step is
// current.
type State struct {
	Step           Step     `json:"step"`
	Topic          string   `json:"topic"`
	GradeLevel     string   `json:"grade_level"`
	Modules        []Module `json:"modules,omitempty"`
	SelectedModule *Module  `json:"selected_module,omitempty"`
	Content        string   `json:"content,omitempty"`
	Loading        bool     `json:"loading"`
	Error          string   `json:"error,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Modules = slices.Clone(s.Modules)
	if s.SelectedModule != nil {
		m := *s.SelectedModule
		out.SelectedModule = &m
	}
	return out
}

// clearDownstream drops everything produced after the topic step.
func (s *State) clearDownstream() {
	s.Modules = nil
	s.SelectedModule = nil
	s.Content = ""
}
