package clinic

import (
	"errors"
	"testing"
)

func TestParseCommandAddRecord(t *testing.T) {
	cmd, err := ParseCommand(ActionAddRecord, map[string]any{
		"patientName":  "Asha Rao",
		"patientAge":   float64(42),
		"department":   "Cardiology",
		"observations": "Follow-up in two weeks",
	})
	if err != nil {
		t.Fatalf("ParseCommand() error = %v, want nil", err)
	}

	add, ok := cmd.(AddRecordCommand)
	if !ok {
		t.Fatalf("Expected AddRecordCommand, got %T", cmd)
	}
	if add.PatientName != "Asha Rao" {
		t.Errorf("Expected patient name 'Asha Rao', got %q", add.PatientName)
	}
	if add.PatientAge != 42 {
		t.Errorf("Expected age 42, got %d", add.PatientAge)
	}
	if add.Department != "Cardiology" {
		t.Errorf("Expected department Cardiology, got %q", add.Department)
	}
	if add.Observations != "Follow-up in two weeks" {
		t.Errorf("Expected observations preserved, got %q", add.Observations)
	}
}

func TestParseCommandForgivingArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want AddRecordCommand
	}{
		{
			name: "age as string",
			args: map[string]any{"patientName": "Ravi", "patientAge": " 67 "},
			want: AddRecordCommand{PatientName: "Ravi", PatientAge: 67},
		},
		{
			name: "age as fractional number",
			args: map[string]any{"patientName": "Ravi", "patientAge": 41.7},
			want: AddRecordCommand{PatientName: "Ravi", PatientAge: 41},
		},
		{
			name: "age garbage",
			args: map[string]any{"patientName": "Ravi", "patientAge": "old"},
			want: AddRecordCommand{PatientName: "Ravi"},
		},
		{
			name: "name mistyped",
			args: map[string]any{"patientName": 7},
			want: AddRecordCommand{},
		},
		{
			name: "nil args",
			args: nil,
			want: AddRecordCommand{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(ActionAddRecord, tt.args)
			if err != nil {
				t.Fatalf("ParseCommand() error = %v, want nil", err)
			}
			if cmd != tt.want {
				t.Errorf("ParseCommand() = %+v, want %+v", cmd, tt.want)
			}
		})
	}
}

func TestParseCommandFilterAllSentinel(t *testing.T) {
	tests := []struct {
		name       string
		args       map[string]any
		wantStatus *string
		wantDept   *string
	}{
		{
			name:       "both set",
			args:       map[string]any{"status": "pending", "department": "Radiology"},
			wantStatus: strPtr("pending"),
			wantDept:   strPtr("Radiology"),
		},
		{
			name:       "all clears status",
			args:       map[string]any{"status": "all", "department": "Radiology"},
			wantStatus: nil,
			wantDept:   strPtr("Radiology"),
		},
		{
			name:       "ALL is case insensitive",
			args:       map[string]any{"status": "ALL", "department": "All"},
			wantStatus: nil,
			wantDept:   nil,
		},
		{
			name:       "empty and missing mean unset",
			args:       map[string]any{"status": "  "},
			wantStatus: nil,
			wantDept:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(ActionApplyFilter, tt.args)
			if err != nil {
				t.Fatalf("ParseCommand() error = %v, want nil", err)
			}
			filter := cmd.(ApplyFilterCommand)
			if !strPtrEqual(filter.Status, tt.wantStatus) {
				t.Errorf("Status = %v, want %v", strPtrString(filter.Status), strPtrString(tt.wantStatus))
			}
			if !strPtrEqual(filter.Department, tt.wantDept) {
				t.Errorf("Department = %v, want %v", strPtrString(filter.Department), strPtrString(tt.wantDept))
			}
		})
	}
}

func TestParseCommandRate(t *testing.T) {
	cmd, err := ParseCommand(ActionSetBonusRate, map[string]any{"rate": "75.5"})
	if err != nil {
		t.Fatalf("ParseCommand() error = %v, want nil", err)
	}
	if got := cmd.(SetBonusRateCommand).Rate; got != 75.5 {
		t.Errorf("Expected rate 75.5, got %v", got)
	}
}

func TestParseCommandNoArgActions(t *testing.T) {
	cmd, err := ParseCommand(ActionUpload, nil)
	if err != nil {
		t.Fatalf("ParseCommand(upload) error = %v", err)
	}
	if _, ok := cmd.(UploadCommand); !ok {
		t.Errorf("Expected UploadCommand, got %T", cmd)
	}

	cmd, err = ParseCommand(ActionClearAll, map[string]any{"stray": true})
	if err != nil {
		t.Fatalf("ParseCommand(clear) error = %v", err)
	}
	if _, ok := cmd.(ClearCommand); !ok {
		t.Errorf("Expected ClearCommand, got %T", cmd)
	}
}

func TestParseCommandUnknown(t *testing.T) {
	_, err := ParseCommand("reboot_mainframe", map[string]any{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("ParseCommand() error = %v, want ErrUnknownAction", err)
	}
}

func strPtr(s string) *string { return &s }

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrString(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}
