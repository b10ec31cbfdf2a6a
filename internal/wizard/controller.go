package wizard

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/learnpath/internal/curriculum"
	"github.com/p-n-ai/learnpath/internal/events"
)

// Generator produces modules and module content. Implementations may block
// for as long as the underlying model takes.
type Generator interface {
	GenerateModules(ctx context.Context, topic, gradeLevel string) ([]Module, error)
	GenerateModuleContent(ctx context.Context, title, description, gradeLevel string) (string, error)
}

// Config holds dependencies for a Controller.
type Config struct {
	SessionID string
	Generator Generator
	Catalog   *curriculum.Catalog
	Events    events.Logger
	// OnChange is called with a snapshot after every state change, while the
	// controller's lock is held. It must not call back into the controller.
	OnChange func(State)
}

// Controller drives one learner's wizard. It is safe for concurrent use; at
// most one generation request runs at a time.
type Controller struct {
	mu        sync.Mutex
	state     State
	sessionID string
	generator Generator
	catalog   *curriculum.Catalog
	events    events.Logger
	onChange  func(State)
}

// New creates a controller in the topic step with the catalog's default
// grade level.
func New(cfg Config) *Controller {
	c := newController(cfg)
	c.state = State{
		Step:       StepTopicSelection,
		GradeLevel: c.catalog.Default(),
	}
	return c
}

// Restore creates a controller from a saved snapshot. A snapshot taken while
// a request was in flight can never see that request finish, so it comes back
// in the error view.
func Restore(cfg Config, st State) *Controller {
	c := newController(cfg)
	c.state = st.Clone()
	if c.state.Loading {
		c.state.Loading = false
		c.state.Error = MsgModulesFailed
		if c.state.Step == StepModuleSelection {
			c.state.Error = MsgContentFailed
		}
		slog.Warn("restored session with an unfinished request",
			"session_id", c.sessionID,
			"step", c.state.Step.String(),
		)
	}
	if c.state.GradeLevel == "" {
		c.state.GradeLevel = c.catalog.Default()
	}
	return c
}

func newController(cfg Config) *Controller {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = curriculum.DefaultCatalog()
	}
	logger := cfg.Events
	if logger == nil {
		logger = events.NopLogger{}
	}
	return &Controller{
		sessionID: cfg.SessionID,
		generator: cfg.Generator,
		catalog:   catalog,
		events:    logger,
		onChange:  cfg.OnChange,
	}
}

// SessionID returns the id of the session this controller belongs to.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SetTopic records the topic typed by the user.
func (c *Controller) SetTopic(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(StepTopicSelection); err != nil {
		return err
	}
	c.state.Topic = normalizeTopic(topic)
	c.changedLocked()
	return nil
}

// SetGradeLevel records the grade level chosen by the user. Only levels from
// the catalog are accepted.
func (c *Controller) SetGradeLevel(level string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(StepTopicSelection); err != nil {
		return err
	}
	if !c.catalog.Contains(level) {
		return &ValidationError{Field: "grade_level", Message: msgUnknownGrade}
	}
	c.state.GradeLevel = level
	c.changedLocked()
	return nil
}

// RequestModules asks the generator for modules on the current topic and
// grade level and moves to the module step on success.
func (c *Controller) RequestModules(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StepTopicSelection); err != nil {
		c.mu.Unlock()
		return err
	}

	topic, grade := c.state.Topic, c.state.GradeLevel
	if topic == "" {
		c.state.Error = MsgEmptyTopic
		c.changedLocked()
		c.mu.Unlock()

		c.record(events.TypeValidationFailed, StepTopicSelection, map[string]any{"field": "topic"})
		return &ValidationError{Field: "topic", Message: MsgEmptyTopic}
	}

	c.state.Loading = true
	c.changedLocked()
	c.mu.Unlock()

	c.record(events.TypeModulesRequested, StepTopicSelection, map[string]any{
		"topic":       topic,
		"grade_level": grade,
	})

	modules, err := c.generator.GenerateModules(context.WithoutCancel(ctx), topic, grade)

	c.mu.Lock()
	c.state.Loading = false
	if err != nil {
		c.state.Error = MsgModulesFailed
		c.changedLocked()
		c.mu.Unlock()

		slog.Error("module generation failed",
			"session_id", c.sessionID,
			"topic", topic,
			"grade_level", grade,
			"error", err,
		)
		c.record(events.TypeGenerationFailed, StepTopicSelection, map[string]any{
			"op":    OpGenerateModules,
			"error": err.Error(),
		})
		return &GenerationError{Op: OpGenerateModules, Message: MsgModulesFailed, Err: err}
	}

	c.state.Modules = append([]Module(nil), modules...)
	c.state.Step = StepModuleSelection
	c.changedLocked()
	c.mu.Unlock()

	slog.Info("modules generated",
		"session_id", c.sessionID,
		"topic", topic,
		"grade_level", grade,
		"modules", len(modules),
	)
	c.record(events.TypeModulesGenerated, StepModuleSelection, map[string]any{"count": len(modules)})
	return nil
}

// SelectModule records m as the chosen module and asks the generator for its
// content, moving to the content step on success.
func (c *Controller) SelectModule(ctx context.Context, m Module) error {
	return c.selectModule(ctx, func(State) (Module, error) {
		return m, nil
	})
}

// SelectModuleAt selects the module at index in the generated list.
func (c *Controller) SelectModuleAt(ctx context.Context, index int) error {
	return c.selectModule(ctx, func(st State) (Module, error) {
		if index < 0 || index >= len(st.Modules) {
			return Module{}, ErrNoSuchModule
		}
		return st.Modules[index], nil
	})
}

func (c *Controller) selectModule(ctx context.Context, pick func(State) (Module, error)) error {
	c.mu.Lock()
	if err := c.checkLocked(StepModuleSelection); err != nil {
		c.mu.Unlock()
		return err
	}
	m, err := pick(c.state)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	grade := c.state.GradeLevel
	selected := m
	c.state.SelectedModule = &selected
	c.state.Content = ""
	c.state.Loading = true
	c.changedLocked()
	c.mu.Unlock()

	c.record(events.TypeModuleSelected, StepModuleSelection, map[string]any{"title": m.Title})

	content, err := c.generator.GenerateModuleContent(context.WithoutCancel(ctx), m.Title, m.Description, grade)

	c.mu.Lock()
	c.state.Loading = false
	if err != nil {
		// The selection is kept so the user can see what failed.
		c.state.Error = MsgContentFailed
		c.changedLocked()
		c.mu.Unlock()

		slog.Error("content generation failed",
			"session_id", c.sessionID,
			"module", m.Title,
			"grade_level", grade,
			"error", err,
		)
		c.record(events.TypeGenerationFailed, StepModuleSelection, map[string]any{
			"op":    OpGenerateContent,
			"error": err.Error(),
		})
		return &GenerationError{Op: OpGenerateContent, Message: MsgContentFailed, Err: err}
	}

	c.state.Content = content
	c.state.Step = StepContentView
	c.changedLocked()
	c.mu.Unlock()

	slog.Info("module content generated",
		"session_id", c.sessionID,
		"module", m.Title,
		"content_len", len(content),
	)
	c.record(events.TypeContentGenerated, StepContentView, map[string]any{
		"title":       m.Title,
		"content_len": len(content),
	})
	return nil
}

// GoBackToModules leaves the content step for the module list, discarding the
// content and the selection. It is a no-op in the module step.
func (c *Controller) GoBackToModules() error {
	c.mu.Lock()
	if err := c.checkLocked(StepContentView, StepModuleSelection); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Step == StepModuleSelection {
		c.mu.Unlock()
		return nil
	}
	c.state.SelectedModule = nil
	c.state.Content = ""
	c.state.Step = StepModuleSelection
	c.changedLocked()
	c.mu.Unlock()

	c.record(events.TypeBackToModules, StepModuleSelection, nil)
	return nil
}

// GoBackToTopic returns to the topic step, discarding the generated modules.
// Topic and grade level are kept. It is a no-op in the topic step.
func (c *Controller) GoBackToTopic() error {
	c.mu.Lock()
	if err := c.checkLocked(StepModuleSelection, StepContentView, StepTopicSelection); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Step == StepTopicSelection {
		c.mu.Unlock()
		return nil
	}
	c.state.clearDownstream()
	c.state.Step = StepTopicSelection
	c.changedLocked()
	c.mu.Unlock()

	c.record(events.TypeBackToTopic, StepTopicSelection, nil)
	return nil
}

// ResetOnError clears the error and returns to the topic step from anywhere.
// It is the only transition offered by the error view.
func (c *Controller) ResetOnError() error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	from := c.state.Step
	c.state.Error = ""
	c.state.clearDownstream()
	c.state.Step = StepTopicSelection
	c.changedLocked()
	c.mu.Unlock()

	c.record(events.TypeReset, StepTopicSelection, map[string]any{"from": from.String()})
	return nil
}

// checkLocked applies the loading and error guards, then verifies the current
// step is one of allowed.
func (c *Controller) checkLocked(allowed ...Step) error {
	if c.state.Loading {
		return ErrBusy
	}
	if c.state.Error != "" {
		return ErrResetRequired
	}
	for _, s := range allowed {
		if c.state.Step == s {
			return nil
		}
	}
	return ErrInvalidTransition
}

func (c *Controller) changedLocked() {
	if c.onChange != nil {
		c.onChange(c.state.Clone())
	}
}

func (c *Controller) record(eventType string, step Step, data map[string]any) {
	err := c.events.LogEvent(events.Event{
		SessionID: c.sessionID,
		Type:      eventType,
		Step:      step.String(),
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log wizard event",
			"session_id", c.sessionID,
			"type", eventType,
			"error", err,
		)
	}
}

// normalizeTopic trims the topic and puts it in NFC so that visually equal
// topics compare equal. A whitespace-only topic becomes empty.
func normalizeTopic(topic string) string {
	return norm.NFC.String(strings.TrimSpace(topic))
}
