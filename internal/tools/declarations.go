package tools

import (
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	RecordUserDetailsName     = "record_user_details"
	RecordUnknownQuestionName = "record_unknown_question"
)

var recordUserDetailsTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        RecordUserDetailsName,
		Description: "Use this tool to record that a user is interested in being in touch and provided an email address",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"email": {
					Type:        jsonschema.String,
					Description: "The email address of this user",
				},
				"name": {
					Type:        jsonschema.String,
					Description: "The user's name, if they provided it",
				},
				"notes": {
					Type:        jsonschema.String,
					Description: "Any additional information about the conversation that's worth recording to give context",
				},
			},
			Required:             []string{"email"},
			AdditionalProperties: false,
		},
	},
}

var recordUnknownQuestionTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        RecordUnknownQuestionName,
		Description: "Always use this tool to record any question that couldn't be answered as user didn't know the answer",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"question": {
					Type:        jsonschema.String,
					Description: "The question that couldn't be answered",
				},
			},
			Required:             []string{"question"},
			AdditionalProperties: false,
		},
	},
}

// Declarations returns the tools offered to the model, in request order.
func Declarations() []openai.Tool {
	return []openai.Tool{recordUserDetailsTool, recordUnknownQuestionTool}
}
