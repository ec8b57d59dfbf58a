package clinic

import (
	"testing"

	"github.com/clinicdesk/clinicvoice/pkg/records"
)

func TestToolDeclarations(t *testing.T) {
	tools := toolDeclarations()
	if len(tools) != 6 {
		t.Fatalf("Expected 6 tool declarations, got %d", len(tools))
	}

	wantNames := []string{
		ActionAddRecord,
		ActionSetTheme,
		ActionApplyFilter,
		ActionSetBonusRate,
		ActionUpload,
		ActionClearAll,
	}
	for i, tool := range tools {
		if tool.Name != wantNames[i] {
			t.Errorf("Tool %d: expected name %q, got %q", i, wantNames[i], tool.Name)
		}
		if tool.Description == "" {
			t.Errorf("Tool %s: missing description", tool.Name)
		}
		if tool.Parameters["type"] != "object" {
			t.Errorf("Tool %s: expected object schema, got %v", tool.Name, tool.Parameters["type"])
		}
		if _, ok := tool.Parameters["properties"].(map[string]any); !ok {
			t.Errorf("Tool %s: schema missing properties map", tool.Name)
		}
	}
}

func TestToolDeclarationsRequiredFields(t *testing.T) {
	required := map[string][]string{
		ActionAddRecord:    {"patientName"},
		ActionSetTheme:     {"theme"},
		ActionSetBonusRate: {"rate"},
	}
	for _, tool := range toolDeclarations() {
		want, ok := required[tool.Name]
		got, has := tool.Parameters["required"].([]string)
		if !ok {
			if has {
				t.Errorf("Tool %s: unexpected required list %v", tool.Name, got)
			}
			continue
		}
		if !has || len(got) != len(want) {
			t.Errorf("Tool %s: expected required %v, got %v", tool.Name, want, got)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Tool %s: expected required %v, got %v", tool.Name, want, got)
			}
		}
	}
}

func TestToolsBindHandlers(t *testing.T) {
	d, store := newTestDispatcher()

	tools := Tools(d)
	for _, tool := range tools {
		if tool.Handler == nil {
			t.Fatalf("Tool %s: handler not bound", tool.Name)
		}
	}

	// The bound handler must dispatch under its own name, not the last
	// one in the list.
	for _, tool := range tools {
		if tool.Name != ActionUpload {
			continue
		}
		got, err := tool.Handler(nil)
		if err != nil {
			t.Fatalf("Handler returned error: %v", err)
		}
		if got != "Uploaded 0 records." {
			t.Errorf("Expected upload confirmation, got %q", got)
		}
	}
	if len(store.Records()) != 0 {
		t.Errorf("Expected no records, got %d", len(store.Records()))
	}
}

func TestDepartmentEnum(t *testing.T) {
	plain := departmentEnum(false)
	if len(plain) != len(records.Departments()) {
		t.Errorf("Expected %d departments, got %d", len(records.Departments()), len(plain))
	}
	for _, name := range plain {
		if name == "all" {
			t.Error("Expected no 'all' sentinel without includeAll")
		}
	}

	withAll := departmentEnum(true)
	if withAll[len(withAll)-1] != "all" {
		t.Errorf("Expected trailing 'all' sentinel, got %q", withAll[len(withAll)-1])
	}
}

func TestValidatorCompilesAllSchemas(t *testing.T) {
	v := newValidator(toolDeclarations())
	if len(v.schemas) != 6 {
		t.Fatalf("Expected 6 compiled schemas, got %d", len(v.schemas))
	}
}

func TestValidatorCheck(t *testing.T) {
	v := newValidator(toolDeclarations())

	tests := []struct {
		name string
		tool string
		args map[string]any
		want bool
	}{
		{
			name: "valid add_record",
			tool: ActionAddRecord,
			args: map[string]any{"patientName": "Asha", "patientAge": float64(42)},
			want: true,
		},
		{
			name: "missing required patientName",
			tool: ActionAddRecord,
			args: map[string]any{"patientAge": float64(42)},
			want: false,
		},
		{
			name: "wrong argument type",
			tool: ActionAddRecord,
			args: map[string]any{"patientName": "Asha", "patientAge": true},
			want: false,
		},
		{
			name: "theme outside enum",
			tool: ActionSetTheme,
			args: map[string]any{"theme": "neon"},
			want: false,
		},
		{
			name: "nil args on no-required schema",
			tool: ActionUpload,
			args: nil,
			want: true,
		},
		{
			name: "unknown tool always passes",
			tool: "frobnicate_database",
			args: map[string]any{"level": 11},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.check(tt.tool, tt.args); got != tt.want {
				t.Errorf("check(%s) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestValidatorMismatchDoesNotBlockDispatch(t *testing.T) {
	d, store := newTestDispatcher()

	// Arguments that fail schema validation still execute. The model
	// occasionally sends sloppy payloads and losing the record is worse
	// than logging a mismatch.
	got := d.Handle(ActionAddRecord, map[string]any{"patientAge": "forty"})
	if got != "Record added successfully." {
		t.Errorf("Handle() = %q, want confirmation despite mismatch", got)
	}
	if len(store.Records()) != 1 {
		t.Errorf("Expected record stored despite schema mismatch, got %d", len(store.Records()))
	}
}
