// Package clinic implements the voice-controlled data entry assistant:
// the tool dispatch table, the system prompt, and the session controller
// that ties microphone capture, the voice pipeline, and playback together.
package clinic

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownAction is returned by ParseCommand for action names that are
// not in the dispatch table.
var ErrUnknownAction = errors.New("clinic: unknown action")

// Command is a parsed tool invocation. Exactly one concrete type exists
// per dispatch table entry; the dispatcher switches exhaustively.
type Command interface {
	isCommand()
}

// AddRecordCommand creates a new medical record.
type AddRecordCommand struct {
	PatientName  string
	PatientAge   int
	Department   string
	Observations string
}

// SetThemeCommand switches the UI theme.
type SetThemeCommand struct {
	Theme string
}

// ApplyFilterCommand replaces the record list filter. A nil field means
// no constraint; the "all" sentinel is already mapped to nil at parse.
type ApplyFilterCommand struct {
	Status     *string
	Department *string
}

// SetBonusRateCommand changes the per-record upload bonus rate.
type SetBonusRateCommand struct {
	Rate float64
}

// UploadCommand uploads all pending records and credits the bonus.
type UploadCommand struct{}

// ClearCommand deletes every record.
type ClearCommand struct{}

func (AddRecordCommand) isCommand()    {}
func (SetThemeCommand) isCommand()     {}
func (ApplyFilterCommand) isCommand()  {}
func (SetBonusRateCommand) isCommand() {}
func (UploadCommand) isCommand()       {}
func (ClearCommand) isCommand()        {}

// Action names in the dispatch table.
const (
	ActionAddRecord    = "add_record"
	ActionSetTheme     = "set_ui_theme"
	ActionApplyFilter  = "apply_filter"
	ActionSetBonusRate = "set_bonus_rate"
	ActionUpload       = "upload_and_earn"
	ActionClearAll     = "clear_all_data"
)

// ParseCommand maps a tool call to a Command. Argument extraction is
// deliberately forgiving: models misspell fields and send numbers as
// strings, and a half-filled record beats a rejected one.
func ParseCommand(name string, args map[string]any) (Command, error) {
	switch name {
	case ActionAddRecord:
		return AddRecordCommand{
			PatientName:  stringArg(args, "patientName"),
			PatientAge:   intArg(args, "patientAge"),
			Department:   stringArg(args, "department"),
			Observations: stringArg(args, "observations"),
		}, nil

	case ActionSetTheme:
		return SetThemeCommand{Theme: stringArg(args, "theme")}, nil

	case ActionApplyFilter:
		return ApplyFilterCommand{
			Status:     filterArg(args, "status"),
			Department: filterArg(args, "department"),
		}, nil

	case ActionSetBonusRate:
		return SetBonusRateCommand{Rate: numberArg(args, "rate")}, nil

	case ActionUpload:
		return UploadCommand{}, nil

	case ActionClearAll:
		return ClearCommand{}, nil

	default:
		return nil, ErrUnknownAction
	}
}

// stringArg extracts a string argument, empty if missing or mistyped.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg extracts an integer argument. JSON numbers decode as float64;
// string digits are accepted too.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// numberArg extracts a float argument, accepting string digits.
func numberArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// filterArg extracts an optional filter field. Missing, empty, and the
// "all" sentinel all mean "no constraint".
func filterArg(args map[string]any, key string) *string {
	s, ok := args[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return nil
	}
	return &s
}
