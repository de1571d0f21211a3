// SPDX-License-Identifier: Apache-2.0

package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

// Rule names, reported in logs and span attributes.
const (
	RuleWeatherHistory = "weather_history"
	RuleSearch         = "search"
	RuleGenerate       = "generate"
)

// Clarifying replies.
const (
	AskCityAndDate    = "Which city and date should I look up the weather for?"
	AskCity           = "Which city should I look up the weather for?"
	AskDate           = "Which date should I check? Please use YYYY-MM-DD."
	AskSearchQuery    = "What would you like me to search for?"
	AskGeneratePrompt = "What would you like me to generate?"
)

type ruleInput struct {
	message string
	lower   string
	state   map[string]any
	today   time.Time
}

type rule struct {
	name  string
	match func(ruleInput) *Decision
}

// defaultRules are evaluated in order; the first match wins.
func defaultRules() []rule {
	return []rule{
		{name: RuleWeatherHistory, match: matchWeatherHistory},
		{name: RuleSearch, match: matchSearch},
		{name: RuleGenerate, match: matchGenerate},
	}
}

var (
	weatherWords = regexp.MustCompile(`\b(weather|temperatures?|forecast|rain(?:ed|ing|fall)?|precipitation|degrees|windy|humidity)\b`)

	isoDate           = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	dayBefore         = regexp.MustCompile(`\bday before yesterday\b`)
	yesterday         = regexp.MustCompile(`\byesterday\b`)
	lastWeek          = regexp.MustCompile(`\b(last week|a week ago)\b`)
	daysAgo           = regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+days?\s+ago\b`)
	weeksAgo          = regexp.MustCompile(`\b(\d+|one|two|three|four)\s+weeks?\s+ago\b`)
	vaguePast         = regexp.MustCompile(`\b(last|ago|history|historical|previous|past|earlier)\b`)
	cityBeforeWeather = regexp.MustCompile(`(?i)\b([\p{L}][\p{L}'.\-]*(?:\s+[\p{L}][\p{L}'.\-]*)?)\s+weather\b`)
	cityBeforeWhen    = regexp.MustCompile(`\b(\p{Lu}[\p{L}'.\-]*(?:\s+\p{Lu}[\p{L}'.\-]*)?)\s+(?:(?:on\s+)?\d{4}-\d{2}-\d{2}|(?:the\s+)?day\s+before\s+yesterday|yesterday|last\s+week|\S+\s+(?:days?|weeks?)\s+ago)\b`)

	searchVerbs = regexp.MustCompile(`(?i)\b(search(?:\s+for)?|find(?:\s+me)?|show\s+me|look\s+for|look\s+up|get\s+me|browse(?:\s+for)?)\b`)
	genVerbs    = regexp.MustCompile(`(?i)\b(generate|create|draw|make|paint|imagine|render|design)(?:\s+me)?\b`)

	imageFiller    = regexp.MustCompile(`(?i)^(?:(?:some|a few|a couple of|an?|the|more)\s+)?(?:(?:new|nice|good|beautiful|stock)\s+)?(?:photos?|pictures?|pics?|images?|illustrations?|drawings?|paintings?|renders?)(?:\s+(?:of|with|showing|featuring|about))?\b`)
	politeness     = regexp.MustCompile(`(?i)^(?:(?:please|can you|could you|would you|will you|i want you to|i'd like you to|i would like you to),?\s+)+`)
	trailingFiller = regexp.MustCompile(`(?i)(?:[\s,;]+(?:please|for me|some|a few|more|photos?|pictures?|pics?|images?))+[\s.!?]*$`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// cityStopwords end, or disqualify, a captured place name.
var cityStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "this": true, "that": true,
	"yesterday": true, "today": true, "tomorrow": true, "last": true, "past": true,
	"previous": true, "week": true, "weeks": true, "day": true, "days": true,
	"ago": true, "on": true, "at": true, "in": true, "for": true, "was": true,
	"were": true, "is": true, "weather": true, "like": true, "what": true,
	"how": true, "did": true, "it": true, "and": true, "before": true,
	"temperature": true, "history": true, "there": true, "me": true, "of": true,
	"i": true, "we": true, "you": true, "how's": true, "what's": true,
}

func matchWeatherHistory(in ruleInput) *Decision {
	date, marked := resolveDate(in.lower, in.today)
	if !marked {
		return nil
	}
	// A vague "last"/"earlier" only counts when the message talks weather.
	if date == "" && !weatherWords.MatchString(in.lower) {
		return nil
	}
	city := extractCity(in.message)

	switch {
	case city == "" && date == "":
		return &Decision{Clarification: AskCityAndDate}
	case city == "":
		return &Decision{Clarification: AskCity}
	case date == "":
		return &Decision{Clarification: AskDate}
	}
	return &Decision{Call: &tools.Call{
		Name:      tools.NameGetWeatherHistory,
		Arguments: map[string]any{"city": city, "date": date},
	}}
}

// resolveDate reports whether the text refers to the past and, when it can,
// which date. An explicit ISO date wins over relative expressions.
func resolveDate(lower string, today time.Time) (string, bool) {
	if m := isoDate.FindStringSubmatch(lower); m != nil {
		if _, err := time.Parse(tools.DateLayout, m[1]); err == nil {
			return m[1], true
		}
	}
	offset := 0
	switch {
	case dayBefore.MatchString(lower):
		offset = 2
	case yesterday.MatchString(lower):
		offset = 1
	case lastWeek.MatchString(lower):
		offset = 7
	default:
		if m := daysAgo.FindStringSubmatch(lower); m != nil {
			offset = parseCount(m[1])
		} else if m := weeksAgo.FindStringSubmatch(lower); m != nil {
			offset = 7 * parseCount(m[1])
		}
	}
	if offset > 0 {
		return today.AddDate(0, 0, -offset).Format(tools.DateLayout), true
	}
	return "", vaguePast.MatchString(lower)
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func extractCity(message string) string {
	words := strings.Fields(message)
	for i, w := range words {
		switch strings.ToLower(strings.Trim(w, ",.!?")) {
		case "in", "at", "for":
			end := min(i+5, len(words))
			if city := cleanCity(words[i+1 : end]); city != "" {
				return city
			}
		}
	}
	if m := cityBeforeWeather.FindStringSubmatch(message); m != nil {
		words := strings.Fields(m[1])
		// "the Paris weather" -> "Paris"
		for len(words) > 0 && cityStopwords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if city := cleanCity(words); city != "" {
			return city
		}
	}
	// "Paris yesterday": only capitalized names, so chatter is not a city.
	if m := cityBeforeWhen.FindStringSubmatch(message); m != nil {
		return cleanCity(strings.Fields(m[1]))
	}
	return ""
}

// cleanCity keeps the leading run of place-name words, title-cased. It stops
// at a stopword, a number or trailing punctuation.
func cleanCity(words []string) string {
	var kept []string
	for _, w := range words {
		trimmed := strings.TrimRight(w, ".,!?;:")
		if trimmed == "" || cityStopwords[strings.ToLower(trimmed)] || strings.ContainsAny(trimmed, "0123456789") {
			break
		}
		kept = append(kept, titleWord(trimmed))
		if trimmed != w {
			break
		}
	}
	return strings.Join(kept, " ")
}

func titleWord(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}

func matchSearch(in ruleInput) *Decision {
	if weatherWords.MatchString(in.lower) {
		return nil
	}
	loc := searchVerbs.FindStringIndex(in.message)
	if loc == nil {
		return nil
	}
	query := subject(withoutMatch(in.message, loc))
	if query == "" {
		return &Decision{Clarification: AskSearchQuery}
	}
	return &Decision{Call: &tools.Call{
		Name: tools.NameSearchLibrary,
		Arguments: map[string]any{
			"query":  query,
			"source": core.SourceUnsplash,
			"ratio":  PreferredRatio(in.state),
		},
	}}
}

func matchGenerate(in ruleInput) *Decision {
	loc := genVerbs.FindStringIndex(in.message)
	if loc == nil {
		return nil
	}
	prompt := subject(withoutMatch(in.message, loc))
	if prompt == "" {
		return &Decision{Clarification: AskGeneratePrompt}
	}
	return &Decision{Call: &tools.Call{
		Name: tools.NameGenerateAI,
		Arguments: map[string]any{
			"prompt":       prompt,
			"count":        1,
			"aspect_ratio": PreferredRatio(in.state),
		},
	}}
}

// withoutMatch drops the verb phrase at loc and keeps the text on both
// sides: "mountains, show me some" -> "mountains, some".
func withoutMatch(message string, loc []int) string {
	return message[:loc[0]] + " " + message[loc[1]:]
}

// subject strips politeness and image-noun filler around the remaining
// words: "some photos of red foxes, please" -> "red foxes".
func subject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = politeness.ReplaceAllString(s, "")
	s = strings.TrimSpace(imageFiller.ReplaceAllString(s, ""))
	s = trailingFiller.ReplaceAllString(s, "")
	return strings.Trim(s, " \t.,!?;:")
}
