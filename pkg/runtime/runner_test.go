package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/events"
	"github.com/tombee/conduit/pkg/instance"
)

// stubActivity is a scriptable activity for testing.
type stubActivity struct {
	ActivityBase
	canExecuteFn func(ctx context.Context, actCtx *ActivityExecutionContext) (bool, error)
	executeFn    func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error)
	resumeFn     func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error)
}

func (a *stubActivity) CanExecute(ctx context.Context, actCtx *ActivityExecutionContext) (bool, error) {
	if a.canExecuteFn != nil {
		return a.canExecuteFn(ctx, actCtx)
	}
	return true, nil
}

func (a *stubActivity) Execute(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
	if a.executeFn != nil {
		return a.executeFn(ctx, actCtx)
	}
	return Done(), nil
}

func (a *stubActivity) Resume(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
	if a.resumeFn != nil {
		return a.resumeFn(ctx, actCtx)
	}
	return Done(), nil
}

// eventRecord captures one published notification for order assertions.
type eventRecord struct {
	name       string
	activityID string
}

// recordEvents subscribes a catch-all recorder to the mediator.
func recordEvents(m *events.Mediator) *[]eventRecord {
	var records []eventRecord
	m.SubscribeAll(func(ctx context.Context, n events.Notification) error {
		rec := eventRecord{name: n.NotificationName()}
		switch typed := n.(type) {
		case ActivityExecuting:
			rec.activityID = typed.ActivityExecutionContext.ActivityBlueprint.ID
		case ActivityExecuted:
			rec.activityID = typed.ActivityExecutionContext.ActivityBlueprint.ID
		}
		records = append(records, rec)
		return nil
	})
	return &records
}

func assertEvents(t *testing.T, got []eventRecord, want []eventRecord) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event count = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// linearBlueprint builds a -> ("Done") -> b from scratch.
func linearBlueprint(t *testing.T, typeA, typeB string) *blueprint.Blueprint {
	t.Helper()
	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Activities: []definition.ActivityDefinition{
			{ActivityID: "a", Type: typeA},
			{ActivityID: "b", Type: typeB},
		},
		Connections: []definition.ConnectionDefinition{
			{SourceActivityID: "a", TargetActivityID: "b", Outcome: "Done"},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return bp
}

func newTestRunner(registry *ActivityRegistry) (*Runner, *events.Mediator) {
	mediator := events.NewMediator()
	runner := NewRunner(registry, mediator)
	return runner, mediator
}

func TestRunLinearTwoStep(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)

	bp := linearBlueprint(t, "trivial", "trivial")
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}

	assertEvents(t, *records, []eventRecord{
		{name: NotificationActivityExecuting, activityID: "a"},
		{name: NotificationActivityExecuted, activityID: "a"},
		{name: NotificationActivityExecuting, activityID: "b"},
		{name: NotificationActivityExecuted, activityID: "b"},
		{name: NotificationWorkflowExecuted},
		{name: NotificationWorkflowCompleted},
	})
}

func TestRunSuspendThenResume(t *testing.T) {
	executions := 0
	registry := NewActivityRegistry()
	registry.Register("wait", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				return Suspend("order-received"), nil
			},
			resumeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				actCtx.SetOutput(actCtx.Input)
				return Done(), nil
			},
		}
	})
	registry.Register("count", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				executions++
				return Done(), nil
			},
		}
	})

	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "wait", "count")

	// First run from Idle suspends on a
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if inst.Status != instance.StatusSuspended {
		t.Fatalf("status after first run = %s, want suspended", inst.Status)
	}
	if len(inst.BlockingActivities) != 1 || inst.BlockingActivities[0].ActivityID != "a" {
		t.Fatalf("blocking set = %v, want [a]", inst.BlockingActivities)
	}
	last := (*records)[len(*records)-1]
	if last.name != NotificationWorkflowSuspended {
		t.Errorf("first run should end with WorkflowSuspended, got %s", last.name)
	}

	// Second run resumes a with the signal input
	inst, err = runner.RunInstance(context.Background(), bp, inst,
		WithActivityID("a"), WithInput("signal"))
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status after resume = %s, want finished", inst.Status)
	}
	if len(inst.BlockingActivities) != 0 {
		t.Errorf("blocking set should be empty after resume, got %v", inst.BlockingActivities)
	}
	if executions != 1 {
		t.Errorf("downstream activity executed %d times, want 1", executions)
	}
}

func TestRunPostScheduledOrder(t *testing.T) {
	var order []string
	registry := NewActivityRegistry()
	record := func(id string) ActivityConstructor {
		return func() Activity {
			return &stubActivity{
				executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
					order = append(order, id)
					return Noop(), nil
				},
			}
		}
	}
	registry.Register("composite", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				order = append(order, "c")
				wfCtx := actCtx.WorkflowExecutionContext
				wfCtx.ScheduleActivity("d", nil)
				wfCtx.SchedulePostActivity("e", nil)
				return Noop(), nil
			},
		}
	})
	registry.Register("record-d", record("d"))
	registry.Register("record-e", record("e"))

	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Activities: []definition.ActivityDefinition{
			{ActivityID: "c", Type: "composite"},
			{ActivityID: "d", Type: "record-d"},
			{ActivityID: "e", Type: "record-e"},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	runner, _ := newTestRunner(registry)
	inst, err := runner.RunBlueprint(context.Background(), bp, WithActivityID("c"))
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
	want := []string{"c", "d", "e"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
}

func TestRunFault(t *testing.T) {
	boom := errors.New("downstream unavailable")
	registry := NewActivityRegistry()
	registry.Register("failing", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				return nil, boom
			},
		}
	})
	bExecuted := false
	registry.Register("after", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				bExecuted = true
				return Done(), nil
			},
		}
	})

	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "failing", "after")

	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	if inst.Status != instance.StatusFaulted {
		t.Errorf("status = %s, want faulted", inst.Status)
	}
	if len(inst.Faults) != 1 {
		t.Fatalf("faults = %d, want 1", len(inst.Faults))
	}
	if inst.Faults[0].ActivityID != "a" || inst.Faults[0].Message != boom.Error() {
		t.Errorf("fault = %+v", inst.Faults[0])
	}
	if bExecuted {
		t.Error("downstream activity should never dispatch after a fault")
	}

	assertEvents(t, *records, []eventRecord{
		{name: NotificationActivityExecuting, activityID: "a"},
		{name: NotificationActivityExecuted, activityID: "a"},
		{name: NotificationWorkflowExecuted},
		{name: NotificationWorkflowFaulted},
	})
}

func TestRunCanExecuteGuardDeclines(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("guarded", func() Activity {
		return &stubActivity{
			canExecuteFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (bool, error) {
				return false, nil
			},
		}
	})
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "guarded", "trivial")

	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	if inst.Status != instance.StatusIdle {
		t.Errorf("status = %s, want idle", inst.Status)
	}
	assertEvents(t, *records, []eventRecord{
		{name: NotificationWorkflowExecuted},
	})
}

// nilResolver simulates a registry whose definition has been removed.
type nilResolver struct{}

func (nilResolver) GetByInstance(ctx context.Context, definitionID string, version int) (*blueprint.Blueprint, error) {
	return nil, nil
}

func TestRunMissingDefinition(t *testing.T) {
	registry := NewActivityRegistry()
	runner, mediator := newTestRunner(registry)
	runner.WithResolver(nilResolver{})
	records := recordEvents(mediator)

	inst := &instance.WorkflowInstance{
		ID:                   "inst-1",
		WorkflowDefinitionID: "X",
		Version:              3,
		Status:               instance.StatusSuspended,
	}

	_, err := runner.Run(context.Background(), inst)
	var missingErr *DefinitionMissingError
	if !errors.As(err, &missingErr) {
		t.Fatalf("error = %v, want DefinitionMissingError", err)
	}
	if missingErr.DefinitionID != "X" || missingErr.Version != 3 {
		t.Errorf("error detail = %+v", missingErr)
	}
	if len(*records) != 0 {
		t.Errorf("no events should be published, got %v", *records)
	}
}

func TestRunResumeRequiresBlockingActivity(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })
	runner, _ := newTestRunner(registry)
	bp := linearBlueprint(t, "trivial", "trivial")

	inst := &instance.WorkflowInstance{
		ID:                   "inst-1",
		WorkflowDefinitionID: bp.ID,
		Version:              bp.Version,
		Status:               instance.StatusSuspended,
		BlockingActivities:   []instance.BlockingActivity{{ActivityID: "a"}},
	}

	// Missing activity id
	_, err := runner.RunInstance(context.Background(), bp, inst)
	if err == nil {
		t.Error("resume without an activity id should fail")
	}

	// Activity not in the blocking set
	_, err = runner.RunInstance(context.Background(), bp, inst, WithActivityID("b"))
	if err == nil {
		t.Error("resume targeting a non-blocking activity should fail")
	}
}

func TestRunFinishedInstanceIsNoop(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })
	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "trivial", "trivial")

	inst := &instance.WorkflowInstance{
		ID:                   "inst-1",
		WorkflowDefinitionID: bp.ID,
		Version:              bp.Version,
		Status:               instance.StatusFinished,
	}

	got, err := runner.RunInstance(context.Background(), bp, inst)
	if err != nil {
		t.Fatalf("RunInstance() error = %v", err)
	}
	if got.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
	assertEvents(t, *records, []eventRecord{
		{name: NotificationWorkflowExecuted},
	})
}

func TestRunFaultedInstanceIsNoop(t *testing.T) {
	registry := NewActivityRegistry()
	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "trivial", "trivial")

	inst := &instance.WorkflowInstance{
		ID:     "inst-1",
		Status: instance.StatusFaulted,
	}

	got, err := runner.RunInstance(context.Background(), bp, inst)
	if err != nil {
		t.Fatalf("RunInstance() error = %v", err)
	}
	if got.Status != instance.StatusFaulted {
		t.Errorf("status = %s, want faulted", got.Status)
	}
	assertEvents(t, *records, []eventRecord{
		{name: NotificationWorkflowExecuted},
	})
}

func TestRunMultipleOutcomes(t *testing.T) {
	var order []string
	registry := NewActivityRegistry()
	registry.Register("fanout", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				return Outcomes("Done", "Audit"), nil
			},
		}
	})
	record := func(id string) ActivityConstructor {
		return func() Activity {
			return &stubActivity{
				executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
					order = append(order, id)
					return Noop(), nil
				},
			}
		}
	}
	registry.Register("record-b", record("b"))
	registry.Register("record-c", record("c"))

	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Activities: []definition.ActivityDefinition{
			{ActivityID: "a", Type: "fanout"},
			{ActivityID: "b", Type: "record-b"},
			{ActivityID: "c", Type: "record-c"},
		},
		Connections: []definition.ConnectionDefinition{
			{SourceActivityID: "a", TargetActivityID: "b", Outcome: "Done"},
			{SourceActivityID: "a", TargetActivityID: "c", Outcome: "Audit"},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	runner, _ := newTestRunner(registry)
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
	if fmt.Sprint(order) != fmt.Sprint([]string{"b", "c"}) {
		t.Errorf("dispatch order = %v, want [b c]", order)
	}
}

func TestRunCancelResult(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("cancelling", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				return Cancel(), nil
			},
		}
	})
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, mediator := newTestRunner(registry)
	records := recordEvents(mediator)
	bp := linearBlueprint(t, "cancelling", "trivial")

	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusCancelled {
		t.Errorf("status = %s, want cancelled", inst.Status)
	}
	last := (*records)[len(*records)-1]
	if last.name != NotificationWorkflowCancelled {
		t.Errorf("last event = %s, want WorkflowCancelled", last.name)
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	registry := NewActivityRegistry()
	registry.Register("canceller", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				cancel()
				return Done(), nil
			},
		}
	})
	bExecuted := false
	registry.Register("after", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				bExecuted = true
				return Done(), nil
			},
		}
	})

	runner, _ := newTestRunner(registry)
	bp := linearBlueprint(t, "canceller", "after")

	inst, err := runner.RunBlueprint(ctx, bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusCancelled {
		t.Errorf("status = %s, want cancelled", inst.Status)
	}
	if bExecuted {
		t.Error("activity scheduled after cancellation should not dispatch")
	}
}

func TestRunCombinedResult(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("combined", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				actCtx.SetOutput("combined-output")
				return Combine(Outcomes("Done"), Suspend("later")), nil
			},
		}
	})
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, _ := newTestRunner(registry)
	bp := linearBlueprint(t, "combined", "trivial")

	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	// b was scheduled and executed, but a remains blocking, so the run suspends
	if inst.Status != instance.StatusSuspended {
		t.Errorf("status = %s, want suspended", inst.Status)
	}
	if !inst.IsBlockedOn("a") {
		t.Error("a should remain in the blocking set")
	}
}

func TestRunPropertyResolution(t *testing.T) {
	var seen string
	registry := NewActivityRegistry()
	registry.Register("greeter", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				seen = actCtx.StringPropertyOr("greeting", "")
				return Done(), nil
			},
		}
	})

	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Variables: map[string]interface{}{
			"name": "ada",
		},
		Activities: []definition.ActivityDefinition{
			{
				ActivityID: "a",
				Type:       "greeter",
				Properties: map[string]definition.PropertyDefinition{
					"greeting": {Expression: `"hi " + variables.name`, Syntax: "expr"},
				},
			},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	runner, _ := newTestRunner(registry)
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
	if seen != "hi ada" {
		t.Errorf("resolved property = %q, want %q", seen, "hi ada")
	}
}

func TestRunUnknownActivityTypeErrors(t *testing.T) {
	registry := NewActivityRegistry() // nothing registered
	runner, _ := newTestRunner(registry)
	bp := linearBlueprint(t, "ghost", "ghost")

	// The guard cannot instantiate the activity either, so begin surfaces
	// the resolution failure to the caller.
	_, err := runner.RunBlueprint(context.Background(), bp)
	if err == nil {
		t.Fatal("expected an error for an unregistered activity type")
	}
}

// countingManager counts context loads and saves.
type countingManager struct {
	loads  int
	saves  int
	loaded interface{}
}

func (m *countingManager) LoadContext(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance) (interface{}, error) {
	m.loads++
	return m.loaded, nil
}

func (m *countingManager) SaveContext(ctx context.Context, wfCtx *WorkflowExecutionContext) (string, error) {
	m.saves++
	return fmt.Sprintf("ctx-%d", m.saves), nil
}

func contextBlueprint(t *testing.T, fidelity definition.Fidelity) *blueprint.Blueprint {
	t.Helper()
	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		ContextOptions: &definition.ContextOptions{
			Type:     "OrderContext",
			Fidelity: fidelity,
		},
		Activities: []definition.ActivityDefinition{
			{ActivityID: "a", Type: "trivial"},
			{ActivityID: "b", Type: "trivial"},
		},
		Connections: []definition.ConnectionDefinition{
			{SourceActivityID: "a", TargetActivityID: "b", Outcome: "Done"},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return bp
}

func TestRunBurstFidelity(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	manager := &countingManager{}
	runner, _ := newTestRunner(registry)
	runner.WithContextManager(manager)

	bp := contextBlueprint(t, definition.FidelityBurst)
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	// Fresh instance has no contextId, so the load is skipped; one save
	// after the burst stores the context and records its id.
	if manager.loads != 0 {
		t.Errorf("loads = %d, want 0", manager.loads)
	}
	if manager.saves != 1 {
		t.Errorf("saves = %d, want 1", manager.saves)
	}
	if inst.ContextID != "ctx-1" {
		t.Errorf("contextId = %q, want ctx-1", inst.ContextID)
	}
}

func TestRunActivityFidelity(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	manager := &countingManager{loaded: map[string]interface{}{"total": 1}}
	runner, _ := newTestRunner(registry)
	runner.WithContextManager(manager)

	bp := contextBlueprint(t, definition.FidelityActivity)
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}

	// Two dispatches: the first load is skipped (no contextId yet), the
	// first save sets the contextId, then the second dispatch loads and
	// saves again.
	if manager.loads != 1 {
		t.Errorf("loads = %d, want 1", manager.loads)
	}
	if manager.saves != 2 {
		t.Errorf("saves = %d, want 2", manager.saves)
	}
	if inst.ContextID != "ctx-2" {
		t.Errorf("contextId = %q, want ctx-2", inst.ContextID)
	}
}

// failingManager always fails loads and saves.
type failingManager struct{}

func (failingManager) LoadContext(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance) (interface{}, error) {
	return nil, errors.New("store offline")
}

func (failingManager) SaveContext(ctx context.Context, wfCtx *WorkflowExecutionContext) (string, error) {
	return "", errors.New("store offline")
}

func TestRunContextManagerFailuresAreNonFatal(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, _ := newTestRunner(registry)
	runner.WithContextManager(failingManager{})

	bp := contextBlueprint(t, definition.FidelityBurst)
	inst, err := runner.RunBlueprint(context.Background(), bp, WithContextID("prior"))
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
	// The previous context id is retained when the save fails
	if inst.ContextID != "prior" {
		t.Errorf("contextId = %q, want prior", inst.ContextID)
	}
}

func TestRunSubscriberFailureDoesNotAlterStatus(t *testing.T) {
	registry := NewActivityRegistry()
	registry.Register("trivial", func() Activity { return &stubActivity{} })

	runner, mediator := newTestRunner(registry)
	mediator.SubscribeAll(func(ctx context.Context, n events.Notification) error {
		return errors.New("subscriber exploded")
	})

	bp := linearBlueprint(t, "trivial", "trivial")
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
}

func TestRunExplicitStartActivity(t *testing.T) {
	var order []string
	registry := NewActivityRegistry()
	record := func(id string) ActivityConstructor {
		return func() Activity {
			return &stubActivity{
				executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
					order = append(order, id)
					return Done(), nil
				},
			}
		}
	}
	registry.Register("record-a", record("a"))
	registry.Register("record-b", record("b"))

	bp := linearBlueprint(t, "record-a", "record-b")
	runner, _ := newTestRunner(registry)

	// Start directly at b, skipping a
	inst, err := runner.RunBlueprint(context.Background(), bp, WithActivityID("b"))
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
	if fmt.Sprint(order) != fmt.Sprint([]string{"b"}) {
		t.Errorf("dispatch order = %v, want [b]", order)
	}
}

func TestRunReentrantScheduling(t *testing.T) {
	// An activity id may appear multiple times in the primary queue
	count := 0
	registry := NewActivityRegistry()
	registry.Register("looper", func() Activity {
		return &stubActivity{
			executeFn: func(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
				count++
				if count < 3 {
					actCtx.WorkflowExecutionContext.ScheduleActivity("a", nil)
				}
				return Noop(), nil
			},
		}
	})

	def := &definition.WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Activities: []definition.ActivityDefinition{
			{ActivityID: "a", Type: "looper"},
		},
	}
	bp, err := blueprint.NewMaterializer(nil).Materialize(def)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	runner, _ := newTestRunner(registry)
	inst, err := runner.RunBlueprint(context.Background(), bp)
	if err != nil {
		t.Fatalf("RunBlueprint() error = %v", err)
	}
	if count != 3 {
		t.Errorf("dispatch count = %d, want 3", count)
	}
	if inst.Status != instance.StatusFinished {
		t.Errorf("status = %s, want finished", inst.Status)
	}
}
