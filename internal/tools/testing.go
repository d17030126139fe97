package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arkavo/arkavo-mcp/internal/agent"
	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

var (
	_ tool.Tool = (*RunTest)(nil)
	_ tool.Tool = (*ListTests)(nil)
)

// Scenario is one named smoke check runnable through run_test.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, deviceID string) (string, error)
}

// builtinScenarios assembles the default smoke checks against the live
// dependencies.
func builtinScenarios(store *state.Store, deviceAgent agent.DeviceAgent) []Scenario {
	return []Scenario{
		{
			Name:        "agent_connectivity",
			Description: "Verify the device agent responds to a health probe",
			Run: func(ctx context.Context, deviceID string) (string, error) {
				status := agent.CheckHealth(ctx, deviceAgent, deviceID)
				if !status.Healthy() {
					return "", fmt.Errorf("agent unhealthy: %s", status.LastError)
				}

				return "agent responded to health probe", nil
			},
		},
		{
			Name:        "state_roundtrip",
			Description: "Write, read back, and remove a probe entity in the state store",
			Run: func(_ context.Context, _ string) (string, error) {
				key := fmt.Sprintf("selftest_%d", time.Now().UnixNano())
				probe := map[string]any{"probe": true}

				store.Set(key, probe)

				defer store.Delete(key)

				got, ok := store.Get(key)
				if !ok {
					return "", fmt.Errorf("probe entity %s not readable after write", key)
				}

				if obj, _ := got.(map[string]any); obj["probe"] != true {
					return "", fmt.Errorf("probe entity %s corrupted: %v", key, got)
				}

				return "state store round-trip ok", nil
			},
		},
	}
}

// RunTest executes one named smoke scenario.
type RunTest struct {
	scenarios map[string]Scenario
}

// NewRunTest creates the run_test tool over the built-in scenarios.
func NewRunTest(store *state.Store, deviceAgent agent.DeviceAgent) *RunTest {
	scenarios := make(map[string]Scenario)
	for _, s := range builtinScenarios(store, deviceAgent) {
		scenarios[s.Name] = s
	}

	return &RunTest{scenarios: scenarios}
}

func (t *RunTest) Name() string { return "run_test" }

func (t *RunTest) Description() string {
	return "Run a named smoke-test scenario against the live server dependencies"
}

func (t *RunTest) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{
		"name":      "string",
		"device_id": "string",
	}, "name")
}

func (t *RunTest) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return tool.ErrorResult("InvalidParams", "name is required"), nil
	}

	scenario, ok := t.scenarios[name]
	if !ok {
		return tool.ErrorResult("NotFound", "unknown test %q", name), nil
	}

	deviceID, _ := args["device_id"].(string)

	started := time.Now()

	detail, err := scenario.Run(ctx, deviceID)
	elapsed := time.Since(started)

	if err != nil {
		return map[string]any{
			"name":       name,
			"passed":     false,
			"detail":     err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		}, nil
	}

	return map[string]any{
		"name":       name,
		"passed":     true,
		"detail":     detail,
		"elapsed_ms": elapsed.Milliseconds(),
	}, nil
}

// ListTests enumerates the available smoke scenarios.
type ListTests struct {
	runner *RunTest
}

// NewListTests creates the list_tests tool over the same scenario set as
// runner.
func NewListTests(runner *RunTest) *ListTests {
	return &ListTests{runner: runner}
}

func (t *ListTests) Name() string { return "list_tests" }

func (t *ListTests) Description() string {
	return "List the smoke-test scenarios run_test can execute"
}

func (t *ListTests) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{})
}

func (t *ListTests) Execute(context.Context, map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(t.runner.scenarios))
	for name := range t.runner.scenarios {
		names = append(names, name)
	}

	sort.Strings(names)

	tests := make([]any, 0, len(names))
	for _, name := range names {
		tests = append(tests, map[string]any{
			"name":        name,
			"description": t.runner.scenarios[name].Description,
		})
	}

	return map[string]any{"tests": tests, "count": len(tests)}, nil
}
