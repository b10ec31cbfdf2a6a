package wizard_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/p-n-ai/learnpath/internal/events"
	"github.com/p-n-ai/learnpath/internal/wizard"
)

// stubGenerator records calls and returns canned results. When gate is set,
// calls block until it is closed.
type stubGenerator struct {
	mu           sync.Mutex
	modules      []wizard.Module
	content      string
	modulesErr   error
	contentErr   error
	gate         chan struct{}
	started      chan struct{}
	moduleCalls  [][2]string
	contentCalls [][3]string
}

func (g *stubGenerator) GenerateModules(_ context.Context, topic, gradeLevel string) ([]wizard.Module, error) {
	g.mu.Lock()
	g.moduleCalls = append(g.moduleCalls, [2]string{topic, gradeLevel})
	g.mu.Unlock()
	g.wait()
	if g.modulesErr != nil {
		return nil, g.modulesErr
	}
	return g.modules, nil
}

func (g *stubGenerator) GenerateModuleContent(_ context.Context, title, description, gradeLevel string) (string, error) {
	g.mu.Lock()
	g.contentCalls = append(g.contentCalls, [3]string{title, description, gradeLevel})
	g.mu.Unlock()
	g.wait()
	if g.contentErr != nil {
		return "", g.contentErr
	}
	return g.content, nil
}

func (g *stubGenerator) wait() {
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
}

var lightReactions = wizard.Module{Title: "Light Reactions", Description: "How chloroplasts capture light."}

func newPhotosynthesisGenerator() *stubGenerator {
	return &stubGenerator{
		modules: []wizard.Module{
			lightReactions,
			{Title: "The Calvin Cycle", Description: "Turning carbon dioxide into sugar."},
		},
		content: "<generated text>",
	}
}

func newController(gen wizard.Generator) (*wizard.Controller, *events.MemoryLogger) {
	log := events.NewMemoryLogger()
	return wizard.New(wizard.Config{
		SessionID: "test-session",
		Generator: gen,
		Events:    log,
	}), log
}

func TestController_InitialState(t *testing.T) {
	c, _ := newController(&stubGenerator{})
	st := c.State()

	if st.Step != wizard.StepTopicSelection {
		t.Errorf("Step = %v, want topic_selection", st.Step)
	}
	if st.GradeLevel != "Grade 5" {
		t.Errorf("GradeLevel = %q, want default Grade 5", st.GradeLevel)
	}
	if st.Loading || st.Error != "" || len(st.Modules) != 0 {
		t.Errorf("unexpected initial state: %+v", st)
	}
}

func TestController_PhotosynthesisScenario(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	c, log := newController(gen)
	ctx := context.Background()

	if err := c.SetTopic("Photosynthesis"); err != nil {
		t.Fatalf("SetTopic() error = %v", err)
	}
	if err := c.SetGradeLevel("Grade 5"); err != nil {
		t.Fatalf("SetGradeLevel() error = %v", err)
	}

	if err := c.RequestModules(ctx); err != nil {
		t.Fatalf("RequestModules() error = %v", err)
	}
	st := c.State()
	if st.Step != wizard.StepModuleSelection {
		t.Fatalf("Step = %v, want module_selection", st.Step)
	}
	if !slices.Equal(st.Modules, gen.modules) {
		t.Errorf("Modules = %v, want %v", st.Modules, gen.modules)
	}
	if len(gen.moduleCalls) != 1 || gen.moduleCalls[0] != [2]string{"Photosynthesis", "Grade 5"} {
		t.Errorf("module calls = %v", gen.moduleCalls)
	}

	if err := c.SelectModule(ctx, lightReactions); err != nil {
		t.Fatalf("SelectModule() error = %v", err)
	}
	st = c.State()
	if st.Step != wizard.StepContentView {
		t.Fatalf("Step = %v, want content_view", st.Step)
	}
	if st.SelectedModule == nil || *st.SelectedModule != lightReactions {
		t.Errorf("SelectedModule = %v, want %v", st.SelectedModule, lightReactions)
	}
	if st.Content != "<generated text>" {
		t.Errorf("Content = %q", st.Content)
	}
	want := [3]string{lightReactions.Title, lightReactions.Description, "Grade 5"}
	if len(gen.contentCalls) != 1 || gen.contentCalls[0] != want {
		t.Errorf("content calls = %v, want [%v]", gen.contentCalls, want)
	}

	if err := c.GoBackToModules(); err != nil {
		t.Fatalf("GoBackToModules() error = %v", err)
	}
	st = c.State()
	if st.Step != wizard.StepModuleSelection {
		t.Errorf("Step = %v, want module_selection", st.Step)
	}
	if st.Content != "" || st.SelectedModule != nil {
		t.Errorf("content/selection not cleared: %q %v", st.Content, st.SelectedModule)
	}
	if len(st.Modules) != 2 {
		t.Errorf("Modules should survive going back, got %d", len(st.Modules))
	}

	wantTypes := []string{
		events.TypeModulesRequested,
		events.TypeModulesGenerated,
		events.TypeModuleSelected,
		events.TypeContentGenerated,
		events.TypeBackToModules,
	}
	if got := log.Types(); !slices.Equal(got, wantTypes) {
		t.Errorf("event types = %v, want %v", got, wantTypes)
	}
}

func TestController_RequestModules_EmptyTopic(t *testing.T) {
	topics := []string{"", " ", "\t\n", "  "}

	for _, topic := range topics {
		t.Run("topic="+topic, func(t *testing.T) {
			gen := newPhotosynthesisGenerator()
			c, _ := newController(gen)

			if err := c.SetTopic(topic); err != nil {
				t.Fatalf("SetTopic() error = %v", err)
			}
			err := c.RequestModules(context.Background())

			var ve *wizard.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("RequestModules() error = %v, want ValidationError", err)
			}
			if ve.Field != "topic" {
				t.Errorf("Field = %q, want topic", ve.Field)
			}

			st := c.State()
			if st.Step != wizard.StepTopicSelection {
				t.Errorf("Step = %v, want topic_selection", st.Step)
			}
			if st.Error != "Please enter a topic." {
				t.Errorf("Error = %q", st.Error)
			}
			if st.Loading {
				t.Error("Loading should be false")
			}
			if len(gen.moduleCalls) != 0 {
				t.Errorf("generator called %d times, want 0", len(gen.moduleCalls))
			}
		})
	}
}

func TestController_RequestModules_GeneratorFails(t *testing.T) {
	cause := errors.New("quota exceeded")
	gen := &stubGenerator{modulesErr: cause}
	c, log := newController(gen)
	_ = c.SetTopic("Fractions")

	err := c.RequestModules(context.Background())

	var ge *wizard.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("RequestModules() error = %v, want GenerationError", err)
	}
	if ge.Op != wizard.OpGenerateModules {
		t.Errorf("Op = %q", ge.Op)
	}
	if !errors.Is(err, cause) {
		t.Error("GenerationError should unwrap to the generator's error")
	}

	st := c.State()
	if st.Step != wizard.StepTopicSelection {
		t.Errorf("Step = %v, want topic_selection", st.Step)
	}
	if st.Error != wizard.MsgModulesFailed {
		t.Errorf("Error = %q, want %q", st.Error, wizard.MsgModulesFailed)
	}
	if st.Loading {
		t.Error("Loading should be cleared after failure")
	}
	if len(st.Modules) != 0 {
		t.Error("Modules should stay empty after failure")
	}
	if st.Topic != "Fractions" {
		t.Errorf("Topic = %q, upstream data should be kept", st.Topic)
	}
	if got := log.Types(); got[len(got)-1] != events.TypeGenerationFailed {
		t.Errorf("last event = %q, want generation_failed", got[len(got)-1])
	}
}

func TestController_SelectModule_GeneratorFails(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	gen.contentErr = errors.New("model overloaded")
	c, _ := newController(gen)
	ctx := context.Background()

	_ = c.SetTopic("Photosynthesis")
	if err := c.RequestModules(ctx); err != nil {
		t.Fatalf("RequestModules() error = %v", err)
	}

	err := c.SelectModule(ctx, lightReactions)
	var ge *wizard.GenerationError
	if !errors.As(err, &ge) || ge.Op != wizard.OpGenerateContent {
		t.Fatalf("SelectModule() error = %v, want content GenerationError", err)
	}

	st := c.State()
	if st.Step != wizard.StepModuleSelection {
		t.Errorf("Step = %v, want module_selection", st.Step)
	}
	if st.SelectedModule == nil || *st.SelectedModule != lightReactions {
		t.Errorf("SelectedModule = %v, want it retained", st.SelectedModule)
	}
	if st.Error != wizard.MsgContentFailed {
		t.Errorf("Error = %q", st.Error)
	}
	if st.Loading {
		t.Error("Loading should be false")
	}
	if st.Content != "" {
		t.Errorf("Content = %q, want empty", st.Content)
	}
	if len(st.Modules) != 2 {
		t.Error("Modules should be kept after a content failure")
	}
}

func TestController_SelectModuleAt(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	c, _ := newController(gen)
	ctx := context.Background()
	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(ctx)

	if err := c.SelectModuleAt(ctx, 5); !errors.Is(err, wizard.ErrNoSuchModule) {
		t.Fatalf("SelectModuleAt(5) error = %v, want ErrNoSuchModule", err)
	}
	if err := c.SelectModuleAt(ctx, -1); !errors.Is(err, wizard.ErrNoSuchModule) {
		t.Fatalf("SelectModuleAt(-1) error = %v, want ErrNoSuchModule", err)
	}
	if len(gen.contentCalls) != 0 {
		t.Fatal("out-of-range selection must not call the generator")
	}

	if err := c.SelectModuleAt(ctx, 1); err != nil {
		t.Fatalf("SelectModuleAt(1) error = %v", err)
	}
	st := c.State()
	if st.SelectedModule == nil || st.SelectedModule.Title != "The Calvin Cycle" {
		t.Errorf("SelectedModule = %v", st.SelectedModule)
	}
}

func TestController_GoBackToTopic(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	c, _ := newController(gen)
	ctx := context.Background()
	_ = c.SetTopic("Photosynthesis")
	_ = c.SetGradeLevel("Grade 7")
	_ = c.RequestModules(ctx)

	if err := c.GoBackToTopic(); err != nil {
		t.Fatalf("GoBackToTopic() error = %v", err)
	}
	st := c.State()
	if st.Step != wizard.StepTopicSelection {
		t.Errorf("Step = %v, want topic_selection", st.Step)
	}
	if len(st.Modules) != 0 {
		t.Errorf("Modules = %v, want cleared", st.Modules)
	}
	if st.Topic != "Photosynthesis" || st.GradeLevel != "Grade 7" {
		t.Errorf("topic/grade should be kept, got %q/%q", st.Topic, st.GradeLevel)
	}

	// No-op in the topic step.
	if err := c.GoBackToTopic(); err != nil {
		t.Errorf("GoBackToTopic() from topic step error = %v", err)
	}
}

func TestController_GoBackToModules_FromModuleStepIsNoop(t *testing.T) {
	var changes int
	log := events.NewMemoryLogger()
	c := wizard.New(wizard.Config{
		SessionID: "test-session",
		Generator: newPhotosynthesisGenerator(),
		Events:    log,
		OnChange:  func(wizard.State) { changes++ },
	})
	ctx := context.Background()
	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(ctx)

	before, eventsBefore := changes, len(log.Events())
	if err := c.GoBackToModules(); err != nil {
		t.Fatalf("GoBackToModules() error = %v", err)
	}
	if changes != before {
		t.Errorf("OnChange calls = %d, want %d", changes, before)
	}
	if n := len(log.Events()); n != eventsBefore {
		t.Errorf("events = %d, want %d", n, eventsBefore)
	}
	if st := c.State(); st.Step != wizard.StepModuleSelection || len(st.Modules) != 2 {
		t.Errorf("state changed: %+v", st)
	}
}

func TestController_GoBackToTopic_FromContent(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	c, _ := newController(gen)
	ctx := context.Background()
	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(ctx)
	_ = c.SelectModuleAt(ctx, 0)

	if err := c.GoBackToTopic(); err != nil {
		t.Fatalf("GoBackToTopic() error = %v", err)
	}
	st := c.State()
	if st.Step != wizard.StepTopicSelection || st.SelectedModule != nil || st.Content != "" || st.Modules != nil {
		t.Errorf("downstream data not cleared: %+v", st)
	}
}

func TestController_InvalidTransitions(t *testing.T) {
	c, _ := newController(newPhotosynthesisGenerator())
	ctx := context.Background()

	if err := c.SelectModule(ctx, lightReactions); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("SelectModule() in topic step error = %v, want ErrInvalidTransition", err)
	}
	if err := c.GoBackToModules(); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("GoBackToModules() in topic step error = %v, want ErrInvalidTransition", err)
	}

	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(ctx)

	if err := c.SetTopic("Other"); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("SetTopic() in module step error = %v, want ErrInvalidTransition", err)
	}
	if err := c.RequestModules(ctx); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("RequestModules() in module step error = %v, want ErrInvalidTransition", err)
	}
}

func TestController_SetGradeLevel_Unknown(t *testing.T) {
	c, _ := newController(&stubGenerator{})

	err := c.SetGradeLevel("Grade 42")
	var ve *wizard.ValidationError
	if !errors.As(err, &ve) || ve.Field != "grade_level" {
		t.Fatalf("SetGradeLevel() error = %v, want grade_level ValidationError", err)
	}
	if got := c.State().GradeLevel; got != "Grade 5" {
		t.Errorf("GradeLevel = %q, want unchanged Grade 5", got)
	}
}

func TestController_SetTopic_Normalizes(t *testing.T) {
	c, _ := newController(&stubGenerator{})

	// "e" followed by a combining acute accent composes to U+00E9.
	if err := c.SetTopic("  Cafe\u0301 chemistry \n"); err != nil {
		t.Fatalf("SetTopic() error = %v", err)
	}
	if got := c.State().Topic; got != "Caf\u00e9 chemistry" {
		t.Errorf("Topic = %q", got)
	}
}

func TestController_ErrorRequiresReset(t *testing.T) {
	gen := &stubGenerator{modulesErr: errors.New("boom")}
	c, _ := newController(gen)
	ctx := context.Background()
	_ = c.SetTopic("Volcanoes")
	_ = c.RequestModules(ctx)

	if err := c.RequestModules(ctx); !errors.Is(err, wizard.ErrResetRequired) {
		t.Errorf("RequestModules() with error pending = %v, want ErrResetRequired", err)
	}
	if err := c.SetTopic("Rivers"); !errors.Is(err, wizard.ErrResetRequired) {
		t.Errorf("SetTopic() with error pending = %v, want ErrResetRequired", err)
	}
	if len(gen.moduleCalls) != 1 {
		t.Errorf("generator calls = %d, want 1", len(gen.moduleCalls))
	}
	if got := c.State().Error; got != wizard.MsgModulesFailed {
		t.Errorf("Error = %q, want it kept until reset", got)
	}

	if err := c.ResetOnError(); err != nil {
		t.Fatalf("ResetOnError() error = %v", err)
	}
	st := c.State()
	if st.Error != "" || st.Step != wizard.StepTopicSelection {
		t.Errorf("after reset: %+v", st)
	}
	if st.Topic != "Volcanoes" {
		t.Errorf("Topic = %q, want kept", st.Topic)
	}

	gen.modulesErr = nil
	gen.modules = []wizard.Module{{Title: "Magma", Description: "Molten rock."}}
	if err := c.RequestModules(ctx); err != nil {
		t.Fatalf("RequestModules() after reset error = %v", err)
	}
}

func TestController_ResetOnError_FromModuleStep(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	gen.contentErr = errors.New("boom")
	c, _ := newController(gen)
	ctx := context.Background()
	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(ctx)
	_ = c.SelectModule(ctx, lightReactions)

	if err := c.ResetOnError(); err != nil {
		t.Fatalf("ResetOnError() error = %v", err)
	}
	st := c.State()
	if st.Step != wizard.StepTopicSelection {
		t.Errorf("Step = %v", st.Step)
	}
	if st.SelectedModule != nil || st.Modules != nil || st.Content != "" {
		t.Errorf("downstream data should be cleared: %+v", st)
	}
}

func TestController_BusyWhileLoading(t *testing.T) {
	gen := newPhotosynthesisGenerator()
	gen.gate = make(chan struct{})
	gen.started = make(chan struct{}, 1)
	c, _ := newController(gen)
	_ = c.SetTopic("Photosynthesis")

	done := make(chan error, 1)
	go func() {
		done <- c.RequestModules(context.Background())
	}()
	<-gen.started

	if !c.State().Loading {
		t.Fatal("Loading should be true while the request is in flight")
	}
	if v := c.View(); v.Kind != wizard.ViewLoading {
		t.Errorf("View().Kind = %q, want loading", v.Kind)
	}

	checks := map[string]func() error{
		"RequestModules":  func() error { return c.RequestModules(context.Background()) },
		"SetTopic":        func() error { return c.SetTopic("x") },
		"SetGradeLevel":   func() error { return c.SetGradeLevel("Grade 4") },
		"GoBackToTopic":   c.GoBackToTopic,
		"GoBackToModules": c.GoBackToModules,
		"ResetOnError":    c.ResetOnError,
	}
	for name, fn := range checks {
		if err := fn(); !errors.Is(err, wizard.ErrBusy) {
			t.Errorf("%s() while loading = %v, want ErrBusy", name, err)
		}
	}

	close(gen.gate)
	if err := <-done; err != nil {
		t.Fatalf("RequestModules() error = %v", err)
	}
	if len(gen.moduleCalls) != 1 {
		t.Errorf("generator calls = %d, want exactly 1", len(gen.moduleCalls))
	}
	if c.State().Loading {
		t.Error("Loading should be cleared once the request resolves")
	}
}

func TestController_CancelledContextDoesNotAbort(t *testing.T) {
	gen := &ctxCheckingGenerator{}
	c, _ := newController(gen)
	_ = c.SetTopic("Tides")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.RequestModules(ctx); err != nil {
		t.Fatalf("RequestModules() error = %v", err)
	}
	if gen.sawCancelled {
		t.Error("generator should not see the caller's cancellation")
	}
}

type ctxCheckingGenerator struct {
	sawCancelled bool
}

func (g *ctxCheckingGenerator) GenerateModules(ctx context.Context, _, _ string) ([]wizard.Module, error) {
	g.sawCancelled = ctx.Err() != nil
	return []wizard.Module{{Title: "Moon", Description: "Gravity."}}, nil
}

func (g *ctxCheckingGenerator) GenerateModuleContent(context.Context, string, string, string) (string, error) {
	return "", nil
}

func TestController_OnChange(t *testing.T) {
	var snapshots []wizard.State
	c := wizard.New(wizard.Config{
		Generator: newPhotosynthesisGenerator(),
		OnChange:  func(st wizard.State) { snapshots = append(snapshots, st) },
	})

	_ = c.SetTopic("Photosynthesis")
	_ = c.RequestModules(context.Background())

	// SetTopic, loading on, result.
	if len(snapshots) != 3 {
		t.Fatalf("OnChange calls = %d, want 3", len(snapshots))
	}
	if !snapshots[1].Loading {
		t.Error("second snapshot should be the loading state")
	}
	if snapshots[2].Step != wizard.StepModuleSelection || snapshots[2].Loading {
		t.Errorf("last snapshot = %+v", snapshots[2])
	}

	// Snapshots are copies.
	snapshots[2].Modules[0].Title = "mutated"
	if c.State().Modules[0].Title == "mutated" {
		t.Error("OnChange snapshot shares memory with the controller")
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name      string
		in        wizard.State
		wantError string
	}{
		{
			name: "settled module step",
			in: wizard.State{
				Step:       wizard.StepModuleSelection,
				Topic:      "Rivers",
				GradeLevel: "Grade 4",
				Modules:    []wizard.Module{{Title: "Deltas"}},
			},
		},
		{
			name:      "interrupted module request",
			in:        wizard.State{Step: wizard.StepTopicSelection, Topic: "Rivers", Loading: true},
			wantError: wizard.MsgModulesFailed,
		},
		{
			name: "interrupted content request",
			in: wizard.State{
				Step:           wizard.StepModuleSelection,
				Topic:          "Rivers",
				Modules:        []wizard.Module{{Title: "Deltas"}},
				SelectedModule: &wizard.Module{Title: "Deltas"},
				Loading:        true,
			},
			wantError: wizard.MsgContentFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := wizard.Restore(wizard.Config{SessionID: "s"}, tt.in)
			st := c.State()
			if st.Loading {
				t.Error("restored state should never be loading")
			}
			if st.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", st.Error, tt.wantError)
			}
			if st.Step != tt.in.Step {
				t.Errorf("Step = %v, want %v", st.Step, tt.in.Step)
			}
			if st.GradeLevel == "" {
				t.Error("GradeLevel should fall back to the default")
			}
		})
	}
}
