package askrouter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fallback produces a deterministic answer with no network dependency. It
// must always succeed; it is the floor under every failure path and the
// whole answer source in offline mode.
type Fallback interface {
	Respond(req Request) string
}

// Solar estimate constants used by the offline calculator: average annual
// yield per installed kW in Korea, and the feed-in price per kWh.
const (
	solarYieldKWhPerKW  = 1300
	solarPricePerKWh    = 150
	solarEfficiencyRate = 0.85
)

// RuleAnalyzer is the built-in fallback: keyword rules over the prompt,
// first match wins, with generic study guidance as the final rule. Output
// is flagged through Result.Fallback by the orchestrator, never by
// embedding markers in the text.
type RuleAnalyzer struct {
	rules []fallbackRule
}

type fallbackRule struct {
	name     string
	keywords []string
	pattern  *regexp.Regexp // word-boundary match for tokens too short for Contains
	respond  func(prompt string) string
}

func (r fallbackRule) matches(prompt string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(prompt, kw) {
			return true
		}
	}
	return r.pattern != nil && r.pattern.MatchString(prompt)
}

var _ Fallback = (*RuleAnalyzer)(nil)

var (
	capacityPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kw|킬로와트)`)
	greetingPattern = regexp.MustCompile(`\bhi\b`)
)

// NewRuleAnalyzer creates the built-in rule engine.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{
		rules: []fallbackRule{
			{
				name:     "solar-estimate",
				keywords: []string{"solar", "panel", "kwh", "발전", "태양광"},
				respond:  solarEstimate,
			},
			{
				name:     "homework",
				keywords: []string{"homework", "assignment", "exercise", "과제"},
				respond:  homeworkGuide,
			},
			{
				name:     "prompt-template",
				keywords: []string{"prompt", "template", "프롬프트"},
				respond:  promptTemplate,
			},
			{
				name:     "greeting",
				keywords: []string{"hello", "안녕"},
				pattern:  greetingPattern,
				respond: func(string) string {
					return "Hello! I can help with solar power questions, course assignments and prompt writing. Ask away."
				},
			},
		},
	}
}

// Respond picks the first matching rule for the prompt.
func (a *RuleAnalyzer) Respond(req Request) string {
	prompt := strings.ToLower(req.Prompt)
	for _, r := range a.rules {
		if r.matches(prompt) {
			return r.respond(prompt)
		}
	}
	return genericGuide()
}

// Match returns the name of the rule that would answer the prompt, or empty
// when only the generic guidance applies.
func (a *RuleAnalyzer) Match(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, r := range a.rules {
		if r.matches(lower) {
			return r.name
		}
	}
	return ""
}

// solarEstimate answers with the deterministic yield arithmetic the live
// providers would otherwise elaborate on. Capacity is read from the prompt,
// defaulting to a typical 3 kW home installation.
func solarEstimate(prompt string) string {
	capacity := 3.0
	if m := capacityPattern.FindStringSubmatch(prompt); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			capacity = v
		}
	}

	yearly := capacity * solarYieldKWhPerKW * solarEfficiencyRate
	monthly := yearly / 12
	revenue := yearly * solarPricePerKWh

	return fmt.Sprintf(`Offline estimate for a %.1f kW system (south-facing, 30° tilt):

- Annual output: about %.0f kWh at %.0f%% system efficiency
- Monthly average: about %.0f kWh
- Annual revenue: about %.0f KRW at %d KRW/kWh

A live analysis with regional irradiance data will be available once the AI service is reachable again.`,
		capacity, yearly, solarEfficiencyRate*100, monthly, revenue, solarPricePerKWh)
}

func homeworkGuide(string) string {
	return `Basic assignment guide:

1. Read the full task description before starting.
2. Identify exactly what is being asked for.
3. Work in small steps and keep intermediate results.
4. Relate each step to a real work situation.
5. Review the result once before submitting.

A detailed walkthrough will be available once the AI service is reachable again.`
}

func promptTemplate(string) string {
	return `Reusable prompt skeleton:

1. Role: "You are an expert in ..."
2. Task: "Please do the following: ..."
3. Output format: "Present the result as ..."
4. Constraints: length, tone, audience.

Fill in the four parts with your topic and iterate on the weakest answer section.`
}

func genericGuide() string {
	return `The AI service is not reachable right now, so here is some general guidance:

- Break the question into smaller parts and tackle them one at a time.
- Note what you already know and what is missing.
- Try again in a few minutes for a full AI answer.`
}
