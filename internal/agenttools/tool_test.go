package agenttools

import (
	"context"
	"reflect"
	"testing"
)

type echoTool struct{ name string }

func (t *echoTool) Name() string                { return t.name }
func (t *echoTool) Description() string         { return "echo" }
func (t *echoTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(_ context.Context, input string) (string, error) {
	return input, nil
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "b"})
	r.Register(&echoTool{name: "a"})

	out, err := r.Dispatch(context.Background(), "a", "hello")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := r.Dispatch(context.Background(), "missing", ""); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestAnalysisToolsRegisterEveryCapability(t *testing.T) {
	r := NewRegistry()
	RegisterAnalysisTools(r, nil)

	want := []string{
		"add_step", "delete_step", "execute_step", "get_data_overview",
		"get_step_overview", "revert_snapshot", "save_snapshot", "set_step_config",
	}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("registered tools %v, want %v", got, want)
	}
	for _, name := range want {
		tool, ok := r.Get(name)
		if !ok {
			t.Fatalf("tool %s missing", name)
		}
		params := tool.Parameters()
		if params["type"] != "object" {
			t.Fatalf("tool %s parameters are not an object schema", name)
		}
	}
}
