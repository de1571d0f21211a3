// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strconv"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/executor"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// Reply is the fixed sentence describing a tool result.
func Reply(result tools.Result) string {
	if !result.Succeeded() {
		return fmt.Sprintf("Sorry, %s failed: %s", result.Name, result.Error.Message)
	}

	switch result.Name {
	case tools.NameSearchLibrary:
		n := 0
		switch v := result.Result.(type) {
		case core.SearchResult:
			n = len(v.Images)
		case *core.SearchResult:
			n = len(v.Images)
		default:
			n = count(field(v, "images"))
		}
		return fmt.Sprintf("Found %d images.", n)
	case tools.NameGenerateAI:
		return fmt.Sprintf("Generated %d images.", count(field(result.Result, "images")))
	case tools.NameRefineImage:
		return "Here is the refined image."
	case tools.NameSetView:
		return fmt.Sprintf("Switched to the %v view.", field(result.Result, "view"))
	case tools.NameRefreshWeather:
		return "Refreshing the weather."
	case tools.NameGetWeatherHistory:
		var w executor.WeatherReport
		switch v := result.Result.(type) {
		case executor.WeatherReport:
			w = v
		case *executor.WeatherReport:
			w = *v
		default:
			return DefaultReply
		}
		return fmt.Sprintf("%s %s: high %s°C, low %s°C, rain %smm, wind %sm/s.",
			w.City, w.Date,
			num(w.TemperatureMax), num(w.TemperatureMin),
			num(w.PrecipitationSum), num(w.WindspeedMax),
		)
	}
	return DefaultReply
}

func field(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return nil
}

func count(v any) int {
	switch s := v.(type) {
	case []string:
		return len(s)
	case []any:
		return len(s)
	}
	return 0
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
