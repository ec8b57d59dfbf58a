package clinic

import (
	"testing"

	"github.com/clinicdesk/clinicvoice/pkg/records"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

func newTestDispatcher() (*Dispatcher, *records.Store) {
	store := records.NewStore(50, records.ThemeLight)
	return NewDispatcher(store), store
}

func TestDispatcherAddRecord(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.Handle(ActionAddRecord, map[string]any{
		"patientName": "Asha Rao",
		"patientAge":  float64(42),
		"department":  "cardiology",
	})
	if got != "Record added successfully." {
		t.Errorf("Handle() = %q, want %q", got, "Record added successfully.")
	}

	recs := store.Records()
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	if recs[0].PatientName != "Asha Rao" {
		t.Errorf("Expected patient 'Asha Rao', got %q", recs[0].PatientName)
	}
	if recs[0].Department != records.DeptCardiology {
		t.Errorf("Expected department canonicalized to %q, got %q", records.DeptCardiology, recs[0].Department)
	}
	if recs[0].Status != records.StatusPending {
		t.Errorf("Expected new record pending, got %q", recs[0].Status)
	}
}

func TestDispatcherAddRecordDefaults(t *testing.T) {
	d, store := newTestDispatcher()

	if got := d.Handle(ActionAddRecord, map[string]any{}); got != "Record added successfully." {
		t.Errorf("Handle() = %q, want confirmation", got)
	}

	recs := store.Records()
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	if recs[0].PatientName != records.DefaultPatientName {
		t.Errorf("Expected default patient name, got %q", recs[0].PatientName)
	}
	if recs[0].Department != records.DefaultDepartment {
		t.Errorf("Expected default department, got %q", recs[0].Department)
	}
}

func TestDispatcherSetTheme(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.Handle(ActionSetTheme, map[string]any{"theme": "dark"})
	if got != "Theme updated to dark." {
		t.Errorf("Handle() = %q, want %q", got, "Theme updated to dark.")
	}
	if store.Theme() != records.ThemeDark {
		t.Errorf("Expected theme dark, got %q", store.Theme())
	}

	// Confirmation echoes the spoken casing; the store keeps the
	// canonical form.
	got = d.Handle(ActionSetTheme, map[string]any{"theme": "Clinical"})
	if got != "Theme updated to Clinical." {
		t.Errorf("Handle() = %q, want %q", got, "Theme updated to Clinical.")
	}
	if store.Theme() != records.ThemeClinical {
		t.Errorf("Expected theme clinical, got %q", store.Theme())
	}
}

func TestDispatcherApplyFilter(t *testing.T) {
	d, store := newTestDispatcher()

	d.Handle(ActionAddRecord, map[string]any{"patientName": "A", "department": "Radiology"})
	d.Handle(ActionUpload, nil)
	d.Handle(ActionAddRecord, map[string]any{"patientName": "B", "department": "Cardiology"})

	got := d.Handle(ActionApplyFilter, map[string]any{"status": "pending", "department": "all"})
	if got != "Filters applied." {
		t.Errorf("Handle() = %q, want %q", got, "Filters applied.")
	}

	filter := store.Snapshot().Filter
	if filter.Status == nil || *filter.Status != records.StatusPending {
		t.Errorf("Expected pending status filter, got %+v", filter.Status)
	}
	if filter.Department != nil {
		t.Errorf("Expected department unset via 'all', got %v", *filter.Department)
	}

	visible := store.View()
	if len(visible) != 1 || visible[0].PatientName != "B" {
		t.Errorf("Expected only pending record B visible, got %d records", len(visible))
	}

	// Filtering on everything again shows the full list.
	d.Handle(ActionApplyFilter, map[string]any{"status": "all", "department": "all"})
	if got := len(store.View()); got != 2 {
		t.Errorf("Expected 2 visible records after clearing filter, got %d", got)
	}
}

func TestDispatcherSetBonusRate(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.Handle(ActionSetBonusRate, map[string]any{"rate": float64(75)})
	if got != "Bonus rate updated to 75 Rupees." {
		t.Errorf("Handle() = %q, want %q", got, "Bonus rate updated to 75 Rupees.")
	}
	if store.BonusRate() != 75 {
		t.Errorf("Expected rate 75, got %v", store.BonusRate())
	}

	// Fractional rates keep their decimals, whole ones stay bare.
	got = d.Handle(ActionSetBonusRate, map[string]any{"rate": 62.5})
	if got != "Bonus rate updated to 62.5 Rupees." {
		t.Errorf("Handle() = %q, want %q", got, "Bonus rate updated to 62.5 Rupees.")
	}
}

func TestDispatcherUploadScenario(t *testing.T) {
	d, store := newTestDispatcher()

	d.Handle(ActionAddRecord, map[string]any{"patientName": "A"})
	d.Handle(ActionAddRecord, map[string]any{"patientName": "B"})

	recs := store.Records()
	if len(recs) != 2 || recs[0].PatientName != "B" || recs[1].PatientName != "A" {
		t.Fatalf("Expected newest-first [B, A], got %+v", recs)
	}

	got := d.Handle(ActionUpload, nil)
	if got != "Uploaded 2 records." {
		t.Errorf("Handle() = %q, want %q", got, "Uploaded 2 records.")
	}
	if store.BonusTotal() != 100 {
		t.Errorf("Expected bonus total 100, got %v", store.BonusTotal())
	}
	for _, rec := range store.Records() {
		if rec.Status != records.StatusUploaded {
			t.Errorf("Expected %s uploaded, got %q", rec.PatientName, rec.Status)
		}
		if rec.BonusEarned != 50 {
			t.Errorf("Expected %s stamped with rate 50, got %v", rec.PatientName, rec.BonusEarned)
		}
	}
}

func TestDispatcherUploadNothingPending(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.Handle(ActionUpload, nil)
	if got != "Uploaded 0 records." {
		t.Errorf("Handle() = %q, want %q", got, "Uploaded 0 records.")
	}
	if store.BonusTotal() != 0 {
		t.Errorf("Expected bonus total unchanged, got %v", store.BonusTotal())
	}
}

func TestDispatcherClearAll(t *testing.T) {
	d, store := newTestDispatcher()

	d.Handle(ActionAddRecord, map[string]any{"patientName": "A"})
	d.Handle(ActionUpload, nil)
	d.Handle(ActionSetBonusRate, map[string]any{"rate": float64(80)})

	got := d.Handle(ActionClearAll, nil)
	if got != "All records cleared." {
		t.Errorf("Handle() = %q, want %q", got, "All records cleared.")
	}
	if len(store.Records()) != 0 {
		t.Errorf("Expected empty record list, got %d", len(store.Records()))
	}

	// Earned bonus and settings survive a clear.
	if store.BonusTotal() != 50 {
		t.Errorf("Expected bonus total 50 preserved, got %v", store.BonusTotal())
	}
	if store.BonusRate() != 80 {
		t.Errorf("Expected rate 80 preserved, got %v", store.BonusRate())
	}
}

func TestDispatcherUnknownAction(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.Handle("frobnicate_database", map[string]any{"level": 11})
	if got != "Done" {
		t.Errorf("Handle() = %q, want %q", got, "Done")
	}

	// Unknown actions must never mutate anything.
	if len(store.Records()) != 0 {
		t.Errorf("Expected no records, got %d", len(store.Records()))
	}
	if store.BonusRate() != 50 {
		t.Errorf("Expected rate untouched, got %v", store.BonusRate())
	}
	if store.Theme() != records.ThemeLight {
		t.Errorf("Expected theme untouched, got %q", store.Theme())
	}
}

func TestDispatcherHandleToolCall(t *testing.T) {
	d, store := newTestDispatcher()

	got := d.HandleToolCall(voice.ToolCall{
		ID:        "call-1",
		Name:      ActionAddRecord,
		Arguments: map[string]any{"patientName": "Meera"},
	})
	if got != "Record added successfully." {
		t.Errorf("HandleToolCall() = %q, want confirmation", got)
	}
	if len(store.Records()) != 1 {
		t.Errorf("Expected 1 record, got %d", len(store.Records()))
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{50, "50"},
		{75.5, "75.5"},
		{0, "0"},
		{100.25, "100.25"},
	}
	for _, tt := range tests {
		if got := formatRate(tt.rate); got != tt.want {
			t.Errorf("formatRate(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
