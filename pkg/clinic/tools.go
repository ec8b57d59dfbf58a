package clinic

import (
	"github.com/clinicdesk/clinicvoice/pkg/records"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

// Tools returns the tool declarations exposed to the voice model, with
// every handler bound to the dispatcher. Confirmations and metrics stay
// identical no matter which provider invoked the tool.
func Tools(d *Dispatcher) []voice.Tool {
	tools := toolDeclarations()
	for i := range tools {
		name := tools[i].Name
		tools[i].Handler = func(args map[string]any) (string, error) {
			return d.Handle(name, args), nil
		}
	}
	return tools
}

// toolDeclarations returns the six declarations without handlers bound.
// The validator compiles argument schemas from the same list, so the
// schema the model sees and the schema arguments are checked against can
// never drift apart.
func toolDeclarations() []voice.Tool {
	return []voice.Tool{
		{
			Name:        ActionAddRecord,
			Description: "Add a new medical record for a patient. Use this when the user dictates patient details such as name, age, department, or observations. Fill in whatever fields were mentioned; missing ones get defaults.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patientName": map[string]any{
						"type":        "string",
						"description": "Full name of the patient",
					},
					"patientAge": map[string]any{
						"type":        "integer",
						"description": "Age of the patient in years",
					},
					"department": map[string]any{
						"type":        "string",
						"enum":        departmentEnum(false),
						"description": "Clinic department the record belongs to",
					},
					"observations": map[string]any{
						"type":        "string",
						"description": "Clinical notes or observations for the visit",
					},
				},
				"required": []string{"patientName"},
			},
		},
		{
			Name:        ActionSetTheme,
			Description: "Switch the dashboard color theme. Use this when the user asks for light mode, dark mode, or the clinical look.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"theme": map[string]any{
						"type":        "string",
						"enum":        themeEnum(),
						"description": "Theme to switch to",
					},
				},
				"required": []string{"theme"},
			},
		},
		{
			Name:        ActionApplyFilter,
			Description: "Filter the visible record list by upload status and/or department. Use 'all' for either field to stop filtering on it. Use this when the user asks to see only pending records, only a department, or everything again.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"enum":        []string{"pending", "uploaded", "all"},
						"description": "Upload status to show, or 'all'",
					},
					"department": map[string]any{
						"type":        "string",
						"enum":        departmentEnum(true),
						"description": "Department to show, or 'all'",
					},
				},
			},
		},
		{
			Name:        ActionSetBonusRate,
			Description: "Change the bonus amount earned per uploaded record, in Rupees. Use this when the user wants to raise or lower the per-record bonus.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"rate": map[string]any{
						"type":        "number",
						"description": "New bonus amount per record, in Rupees",
					},
				},
				"required": []string{"rate"},
			},
		},
		{
			Name:        ActionUpload,
			Description: "Upload every pending record and credit the bonus for each one. Use this when the user says to upload, submit, or sync the records.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ActionClearAll,
			Description: "Delete every record from the list. Earned bonus and settings are kept. Use this only when the user clearly asks to clear or wipe the records.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// departmentEnum lists the department names for a tool schema, optionally
// with the "all" sentinel used by apply_filter.
func departmentEnum(includeAll bool) []string {
	depts := records.Departments()
	out := make([]string, 0, len(depts)+1)
	for _, dept := range depts {
		out = append(out, string(dept))
	}
	if includeAll {
		out = append(out, "all")
	}
	return out
}

// themeEnum lists the theme names for the set_ui_theme schema.
func themeEnum() []string {
	return []string{
		string(records.ThemeLight),
		string(records.ThemeDark),
		string(records.ThemeClinical),
	}
}
