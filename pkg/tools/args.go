// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
)

// Tool names.
const (
	NameSearchLibrary     = "search_library"
	NameGenerateAI        = "generate_ai"
	NameRefineImage       = "refine_image"
	NameSetView           = "set_view"
	NameRefreshWeather    = "refresh_weather"
	NameGetWeatherHistory = "get_weather_history"
)

const (
	// MinCount and MaxCount bound generate_ai.count.
	MinCount = 1
	MaxCount = 5

	// DateLayout is the wire format of get_weather_history.date.
	DateLayout = "2006-01-02"
)

// Args is the closed set of typed tool argument records.
type Args interface {
	ToolName() string
	validate() error
}

// SearchLibrary searches a stock-photo library.
type SearchLibrary struct {
	Query  string `json:"query" jsonschema_description:"What to search for, e.g. 'snowy mountains at dusk'"`
	Source string `json:"source,omitempty" jsonschema:"enum=unsplash,enum=pexels" jsonschema_description:"Photo library to search. Defaults to unsplash"`
	Ratio  string `json:"ratio,omitempty" jsonschema:"enum=1:1,enum=4:3,enum=16:9,enum=3:4,enum=9:16" jsonschema_description:"Preferred image ratio"`
}

// GenerateAI generates new images from a text prompt.
type GenerateAI struct {
	Prompt      string `json:"prompt" jsonschema_description:"Description of the image to generate"`
	Count       int    `json:"count,omitempty" jsonschema:"minimum=1,maximum=5,default=1" jsonschema_description:"Number of images"`
	AspectRatio string `json:"aspect_ratio,omitempty" jsonschema:"enum=1:1,enum=4:3,enum=16:9,enum=3:4,enum=9:16" jsonschema_description:"Aspect ratio of the generated images"`
}

// RefineImage edits an existing image following a prompt.
type RefineImage struct {
	Prompt     string `json:"prompt" jsonschema_description:"How the image should change"`
	InputImage string `json:"input_image" jsonschema_description:"URL of the image to refine"`
}

// SetView switches the front-end view.
type SetView struct {
	View string `json:"view" jsonschema:"enum=weather,enum=gallery" jsonschema_description:"View to show"`
}

// RefreshWeather asks the front-end to reload the current weather.
type RefreshWeather struct{}

// GetWeatherHistory looks up the daily weather of a city on a past date.
type GetWeatherHistory struct {
	City string `json:"city" jsonschema_description:"City name, e.g. Barcelona"`
	Date string `json:"date" jsonschema:"format=date" jsonschema_description:"Day to look up as YYYY-MM-DD"`
}

func (SearchLibrary) ToolName() string     { return NameSearchLibrary }
func (GenerateAI) ToolName() string        { return NameGenerateAI }
func (RefineImage) ToolName() string       { return NameRefineImage }
func (SetView) ToolName() string           { return NameSetView }
func (RefreshWeather) ToolName() string    { return NameRefreshWeather }
func (GetWeatherHistory) ToolName() string { return NameGetWeatherHistory }

func (a *SearchLibrary) validate() error {
	a.Query = strings.TrimSpace(a.Query)
	if a.Query == "" {
		return missing(NameSearchLibrary, "query")
	}
	// Unrecognized sources fall back to the default library.
	if a.Source != core.SourceUnsplash && a.Source != core.SourcePexels {
		a.Source = core.SourceUnsplash
	}
	if a.Ratio == "" {
		a.Ratio = core.DefaultRatio
	}
	if !core.ValidRatio(a.Ratio) {
		return invalid(NameSearchLibrary, "ratio", a.Ratio)
	}
	return nil
}

func (a *GenerateAI) validate() error {
	a.Prompt = strings.TrimSpace(a.Prompt)
	if a.Prompt == "" {
		return missing(NameGenerateAI, "prompt")
	}
	if a.Count == 0 {
		a.Count = MinCount
	}
	if a.Count < MinCount || a.Count > MaxCount {
		return invalid(NameGenerateAI, "count", a.Count)
	}
	if a.AspectRatio == "" {
		a.AspectRatio = core.DefaultRatio
	}
	if !core.ValidRatio(a.AspectRatio) {
		return invalid(NameGenerateAI, "aspect_ratio", a.AspectRatio)
	}
	return nil
}

func (a *RefineImage) validate() error {
	a.Prompt = strings.TrimSpace(a.Prompt)
	a.InputImage = strings.TrimSpace(a.InputImage)
	if a.Prompt == "" {
		return missing(NameRefineImage, "prompt")
	}
	if a.InputImage == "" {
		return missing(NameRefineImage, "input_image")
	}
	return nil
}

func (a *SetView) validate() error {
	switch a.View {
	case "":
		return missing(NameSetView, "view")
	case core.ViewWeather, core.ViewGallery:
		return nil
	default:
		return invalid(NameSetView, "view", a.View)
	}
}

func (a *RefreshWeather) validate() error { return nil }

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func (a *GetWeatherHistory) validate() error {
	a.City = strings.TrimSpace(a.City)
	a.Date = strings.TrimSpace(a.Date)
	if a.City == "" {
		return missing(NameGetWeatherHistory, "city")
	}
	if a.Date == "" {
		return missing(NameGetWeatherHistory, "date")
	}
	if !isoDate.MatchString(a.Date) {
		return invalid(NameGetWeatherHistory, "date", a.Date)
	}
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return invalid(NameGetWeatherHistory, "date", a.Date)
	}
	return nil
}

// Decode turns a call into its typed argument record. Unknown names yield an
// UnknownTool error; missing or malformed arguments an InvalidInput error.
// Optional arguments come back with their defaults applied.
func Decode(call Call) (Args, error) {
	var args Args
	switch call.Name {
	case NameSearchLibrary:
		args = &SearchLibrary{}
	case NameGenerateAI:
		args = &GenerateAI{}
	case NameRefineImage:
		args = &RefineImage{}
	case NameSetView:
		args = &SetView{}
	case NameRefreshWeather:
		args = &RefreshWeather{}
	case NameGetWeatherHistory:
		args = &GetWeatherHistory{}
	default:
		return nil, errors.NewUnknownTool(call.Name)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           args,
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build argument decoder", err)
	}
	if err := decoder.Decode(call.Arguments); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "malformed arguments for "+call.Name, err).
			WithContext("tool_name", call.Name)
	}
	if err := args.validate(); err != nil {
		return nil, err
	}
	return args, nil
}

func missing(tool, field string) error {
	return errors.NewInvalidInput(fmt.Sprintf("%s requires %s", tool, field)).
		WithContext("tool_name", tool).
		WithContext("argument", field)
}

func invalid(tool, field string, value any) error {
	return errors.NewInvalidInput(fmt.Sprintf("invalid %s for %s: %v", field, tool, value)).
		WithContext("tool_name", tool).
		WithContext("argument", field)
}
