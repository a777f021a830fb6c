package inspector

import (
	"encoding/json"
	"testing"
)

func TestDartString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tree_1", `"tree_1"`},
		{`say "hi"`, `"say \"hi\""`},
		{`$name`, `"\$name"`},
		{`C:\src`, `"C:\\src"`},
		{"a\nb", `"a\nb"`},
	}
	for _, tt := range tests {
		if got := dartString(tt.in); got != tt.want {
			t.Errorf("dartString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCallExpression(t *testing.T) {
	got := callExpression("getProperties", nil, strPtr("group_3"))
	want := `WidgetInspectorService.instance.getProperties(null, "group_3")`
	if got != want {
		t.Errorf("callExpression = %s, want %s", got, want)
	}

	if got := callExpression("isWidgetTreeReady"); got != "WidgetInspectorService.instance.isWidgetTreeReady()" {
		t.Errorf("callExpression without args = %s", got)
	}
}

// TestStripNulls verifies nil values of any kind are dropped and string
// pointers are dereferenced.
func TestStripNulls(t *testing.T) {
	var absent *string
	out := stripNulls(map[string]interface{}{
		"arg":         absent,
		"nothing":     nil,
		"objectGroup": "g_1",
		"id":          strPtr("inspector-4"),
		"count":       3,
	})

	if len(out) != 3 {
		t.Fatalf("expected 3 params, got %v", out)
	}
	if out["id"] != "inspector-4" || out["objectGroup"] != "g_1" || out["count"] != 3 {
		t.Errorf("unexpected params %v", out)
	}
}

// TestExtensionTransport_Decode verifies the result member is unwrapped.
func TestExtensionTransport_Decode(t *testing.T) {
	var tr extensionTransport
	v, err := tr.decode(json.RawMessage(`{"type":"_extensionType","method":"ext.flutter.inspector.isWidgetTreeReady","result":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(v.json) != "true" || v.ref != nil {
		t.Errorf("unexpected value %+v", v)
	}
}

// TestEvalTransport_Decode verifies evaluation errors surface as errors.
func TestEvalTransport_Decode(t *testing.T) {
	var tr evalTransport
	if _, err := tr.decode(json.RawMessage(`{"type":"@Error","kind":"CompilationError","message":"no such method"}`)); err == nil {
		t.Error("expected error for @Error result")
	}
	v, err := tr.decode(json.RawMessage(evalNull))
	if err != nil || !v.ref.IsNull() {
		t.Errorf("decode null = %+v, %v", v, err)
	}
}
