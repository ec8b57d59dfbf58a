package clinic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/internal/metrics"
	"github.com/clinicdesk/clinicvoice/pkg/records"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

// Dispatcher executes tool calls against the record store and returns the
// confirmation text the assistant speaks back. Both the live voice
// pipeline and the dashboard's manual trigger endpoint go through here, so
// voice-driven and button-driven mutations behave identically.
type Dispatcher struct {
	store     *records.Store
	validator *validator
}

// NewDispatcher creates a dispatcher bound to a store.
func NewDispatcher(store *records.Store) *Dispatcher {
	return &Dispatcher{
		store:     store,
		validator: newValidator(toolDeclarations()),
	}
}

// HandleToolCall dispatches a pipeline tool call.
func (d *Dispatcher) HandleToolCall(call voice.ToolCall) string {
	return d.Handle(call.Name, call.Arguments)
}

// Handle executes a named action. Unknown actions mutate nothing and
// confirm with "Done" so the conversation keeps moving; they are logged
// and counted separately so they don't pass silently.
func (d *Dispatcher) Handle(name string, args map[string]any) string {
	if d.validator != nil {
		d.validator.check(name, args)
	}

	cmd, err := ParseCommand(name, args)
	if err != nil {
		if errors.Is(err, ErrUnknownAction) {
			log.Warn("unknown tool action", "action", name)
			metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
			return "Done"
		}
		log.Warn("tool parse failed", "action", name, "error", err)
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return "Done"
	}

	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()

	confirmation := d.execute(cmd)
	log.Debug("tool dispatched", "action", name, "confirmation", confirmation)
	return confirmation
}

// execute mutates the store for one parsed command and produces its
// confirmation text.
func (d *Dispatcher) execute(cmd Command) string {
	switch c := cmd.(type) {
	case AddRecordCommand:
		// Canonicalize the department casing; unknown names pass through
		// so free-text departments still land on the record.
		dept, _ := records.ParseDepartment(c.Department)
		d.store.AddRecord(records.Input{
			PatientName:  c.PatientName,
			PatientAge:   c.PatientAge,
			Department:   string(dept),
			Observations: c.Observations,
		})
		metrics.RecordsCreated.WithLabelValues("voice").Inc()
		return "Record added successfully."

	case SetThemeCommand:
		theme, _ := records.ParseTheme(c.Theme)
		d.store.SetTheme(theme)
		return fmt.Sprintf("Theme updated to %s.", c.Theme)

	case ApplyFilterCommand:
		var f records.Filter
		if c.Status != nil {
			st := records.Status(strings.ToLower(*c.Status))
			f.Status = &st
		}
		if c.Department != nil {
			dept, _ := records.ParseDepartment(*c.Department)
			f.Department = &dept
		}
		d.store.SetFilter(f)
		return "Filters applied."

	case SetBonusRateCommand:
		d.store.SetBonusRate(c.Rate)
		return fmt.Sprintf("Bonus rate updated to %s Rupees.", formatRate(c.Rate))

	case UploadCommand:
		count, credited := d.store.UploadAllPending()
		metrics.RecordsUploaded.Add(float64(count))
		metrics.BonusCredited.Add(credited)
		return fmt.Sprintf("Uploaded %d records.", count)

	case ClearCommand:
		d.store.ClearAll()
		return "All records cleared."

	default:
		// Unreachable while ParseCommand and the union stay in sync.
		log.Error("unhandled command type", "command", fmt.Sprintf("%T", cmd))
		return "Done"
	}
}

// formatRate renders a bonus rate without trailing zeros: 50 not 50.000000.
func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}
