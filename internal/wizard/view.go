package wizard

import "log/slog"

// ViewKind names the screen a client should show.
type ViewKind string

const (
	ViewLoading         ViewKind = "loading"
	ViewError           ViewKind = "error"
	ViewTopicSelection  ViewKind = "topic_selection"
	ViewModuleSelection ViewKind = "module_selection"
	ViewContent         ViewKind = "content"
)

// Actions a view can offer.
const (
	ActionSetTopic       = "set_topic"
	ActionRequestModules = "request_modules"
	ActionSelectModule   = "select_module"
	ActionBackToTopic    = "back_to_topic"
	ActionBackToModules  = "back_to_modules"
	ActionReset          = "reset"
)

// View is what a client renders: the screen plus the data and actions it
// needs, nothing more.
type View struct {
	Kind        ViewKind `json:"kind"`
	Topic       string   `json:"topic,omitempty"`
	GradeLevel  string   `json:"grade_level,omitempty"`
	GradeLevels []string `json:"grade_levels,omitempty"`
	Modules     []Module `json:"modules,omitempty"`
	Module      *Module  `json:"module,omitempty"`
	Content     string   `json:"content,omitempty"`
	Error       string   `json:"error,omitempty"`
	Actions     []string `json:"actions"`
}

// ViewOf resolves the view for st. Loading wins over error, error wins over
// the step. A content step without a selected module resolves to the topic
// view.
func ViewOf(st State, gradeLevels []string) View {
	if st.Loading {
		return View{Kind: ViewLoading, Actions: []string{}}
	}
	if st.Error != "" {
		return View{Kind: ViewError, Error: st.Error, Actions: []string{ActionReset}}
	}

	switch st.Step {
	case StepModuleSelection:
		return View{
			Kind:       ViewModuleSelection,
			Topic:      st.Topic,
			GradeLevel: st.GradeLevel,
			Modules:    st.Clone().Modules,
			Actions:    []string{ActionSelectModule, ActionBackToTopic},
		}
	case StepContentView:
		if st.SelectedModule != nil {
			m := *st.SelectedModule
			return View{
				Kind:    ViewContent,
				Module:  &m,
				Content: st.Content,
				Actions: []string{ActionBackToModules},
			}
		}
	}

	return View{
		Kind:        ViewTopicSelection,
		Topic:       st.Topic,
		GradeLevel:  st.GradeLevel,
		GradeLevels: gradeLevels,
		Actions:     []string{ActionSetTopic, ActionRequestModules},
	}
}

// View returns the view for the current state. If the state claims the
// content step without a selected module, which no transition produces, the
// controller falls back to the topic step instead of rendering a broken view.
func (c *Controller) View() View {
	c.mu.Lock()
	if c.state.Step == StepContentView && c.state.SelectedModule == nil && !c.state.Loading {
		slog.Warn("content step without a selected module, returning to topic selection",
			"session_id", c.sessionID,
		)
		c.state.clearDownstream()
		c.state.Step = StepTopicSelection
		c.changedLocked()
	}
	st := c.state.Clone()
	c.mu.Unlock()

	return ViewOf(st, c.catalog.Levels())
}
