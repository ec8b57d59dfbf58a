package clinic

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

// validator checks tool arguments against the declared parameter schemas.
// Validation is advisory only: a mismatch is logged so prompt regressions
// show up in the logs, but the call still executes. A half-filled record
// beats a rejected one.
type validator struct {
	schemas map[string]*gojsonschema.Schema
}

// newValidator compiles the parameter schema of each tool. A schema that
// fails to compile is skipped with a warning and its tool goes unchecked.
func newValidator(tools []voice.Tool) *validator {
	v := &validator{schemas: make(map[string]*gojsonschema.Schema, len(tools))}
	for _, tool := range tools {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Parameters))
		if err != nil {
			log.Warn("tool schema failed to compile", "tool", tool.Name, "error", err)
			continue
		}
		v.schemas[tool.Name] = schema
	}
	return v
}

// check validates args against the schema for name and logs every
// mismatch. It reports whether the arguments were clean; callers proceed
// regardless.
func (v *validator) check(name string, args map[string]any) bool {
	schema, ok := v.schemas[name]
	if !ok {
		return true
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		log.Warn("tool argument validation errored", "tool", name, "error", err)
		return true
	}
	if result.Valid() {
		return true
	}
	for _, issue := range result.Errors() {
		log.Warn("tool argument mismatch", "tool", name, "issue", issue.String())
	}
	return false
}
