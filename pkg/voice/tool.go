package voice

// Tool is a function the model may invoke mid-conversation, like creating
// a record or switching the dashboard theme. Tools are registered on a
// pipeline before Start and advertised to the provider at connect time.
type Tool struct {
	// Name is the identifier the model calls the tool by ("add_record").
	Name string `json:"name"`

	// Description tells the model what the tool does and when to use it.
	Description string `json:"description"`

	// Parameters is a JSON schema object describing the arguments:
	//
	//	map[string]any{
	//	    "type": "object",
	//	    "properties": map[string]any{
	//	        "theme": map[string]any{
	//	            "type": "string",
	//	            "enum": []string{"light", "dark", "clinical"},
	//	        },
	//	    },
	//	    "required": []string{"theme"},
	//	}
	Parameters map[string]any `json:"parameters"`

	// Handler runs when the model invokes the tool. Its string result is
	// sent back so the conversation can continue. A nil Handler means the
	// invocation surfaces only through OnToolCall.
	Handler func(args map[string]any) (string, error) `json:"-"`
}

// ToolCall describes one invocation the model requested. The ID ties a
// later SubmitToolResult back to this call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
