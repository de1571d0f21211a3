// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools declares the fixed set of tools the agent can invoke, their
// typed argument records and the uniform result record.
package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/llm"
)

// Call is one requested tool invocation.
type Call struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallFromLLM converts a model tool call into a Call.
// Arguments that are not a JSON object are reported as invalid input.
func CallFromLLM(tc llm.ToolCall) (Call, error) {
	call := Call{ID: tc.ID, Name: tc.Function.Name, Arguments: map[string]any{}}
	if tc.Function.Arguments == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
		return call, errors.New(errors.CodeInvalidInput, "tool arguments are not a JSON object", err).
			WithContext("tool_name", tc.Function.Name)
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call, nil
}

// Spec describes one tool to the planner and to MCP clients.
type Spec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// Registry is the ordered, immutable list of tool specs.
type Registry struct {
	specs []Spec
	index map[string]int
}

// NewRegistry returns the registry of every tool the relay supports.
func NewRegistry() *Registry {
	return newRegistry(
		spec(&SearchLibrary{}, "Search a stock photo library (Unsplash or Pexels) for existing images."),
		spec(&GenerateAI{}, "Generate new images with an AI model from a text prompt."),
		spec(&RefineImage{}, "Edit an existing image according to a prompt."),
		spec(&SetView{}, "Switch the front-end between the weather and gallery views."),
		spec(&RefreshWeather{}, "Reload the current weather shown in the weather view."),
		spec(&GetWeatherHistory{}, "Look up the recorded weather of a city on a past date."),
	)
}

func newRegistry(specs ...Spec) *Registry {
	r := &Registry{index: make(map[string]int, len(specs))}
	for _, s := range specs {
		if _, dup := r.index[s.Name]; dup {
			panic("tools: duplicate tool " + s.Name)
		}
		r.index[s.Name] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	return r
}

// Specs returns the specs in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Lookup returns the spec for name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	i, ok := r.index[name]
	if !ok {
		return Spec{}, false
	}
	return r.specs[i], true
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// LLMTools renders the registry as function tools for a chat request.
func (r *Registry) LLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, llm.FunctionTool(s.Name, s.Description, s.Parameters))
	}
	return out
}

func spec(args Args, description string) Spec {
	return Spec{
		Name:        args.ToolName(),
		Description: description,
		Parameters:  parameterSchema(args),
	}
}

// parameterSchema reflects the argument record into a plain JSON schema map.
func parameterSchema(args Args) map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(args)

	params := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}
	raw, err := json.Marshal(schema.Properties)
	if err == nil {
		var props map[string]any
		if json.Unmarshal(raw, &props) == nil && props != nil {
			params["properties"] = props
		}
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	return params
}

// Result is the outcome of executing one call. Exactly one of Result and
// Error is set.
type Result struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result,omitempty"`
	Error  *ResultError   `json:"error,omitempty"`
}

// ResultError is the failure half of a Result.
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Succeeded reports whether the result carries a value.
func (r Result) Succeeded() bool { return r.Error == nil }

// Success builds a successful result.
func Success(call Call, value any) Result {
	if value == nil {
		value = map[string]any{}
	}
	return Result{Name: call.Name, Args: call.Arguments, Result: value}
}

// Failure builds a failed result from err.
func Failure(call Call, err error) Result {
	if err == nil {
		err = errors.New(errors.CodeInternal, "tool failed without an error", nil)
	}
	msg := err.Error()
	if re := errors.AsRelayError(err); re != nil {
		msg = re.Detail()
	}
	return Result{
		Name: call.Name,
		Args: call.Arguments,
		Error: &ResultError{
			Kind:    errors.KindOf(err),
			Message: msg,
		},
	}
}
