package classifier

import (
	"strings"
	"unicode"

	"uplevel-orchestrator/internal/domain"
)

// sequentialMarkers signal ordered multi-step intent ("first check X, then Y").
var sequentialMarkers = []string{
	"first", "then", "after that", "next", "followed by",
}

// collaborativeMarkers signal that several agents should answer in parallel.
var collaborativeMarkers = []string{
	"along with", "combined with", "and", "also", "both", "plus",
}

// Classifier scores a query against each agent's keyword corpus and decides
// the execution shape: single agent, collaborative fan-out, or a sequential
// workflow.
type Classifier struct {
	minScore float64
}

// New creates a classifier with the given minimum relevance score.
func New(minScore float64) *Classifier {
	return &Classifier{minScore: minScore}
}

// agentTerms is the precomputed match corpus for one agent: its keywords
// plus capability tags with underscores expanded to spaces.
type agentTerms struct {
	agent   domain.Agent
	phrases [][]string
}

// Classify decides how query should be executed given the currently
// registered agents (in registration order). Classification is a pure
// function of its inputs; the same query and agent set always yield the
// same result.
func (c *Classifier) Classify(query string, agents []domain.Agent) domain.Classification {
	tokens := tokenize(query)
	if len(tokens) == 0 || len(agents) == 0 {
		return domain.Classification{Type: domain.QueryUnclassified}
	}

	corpus := buildCorpus(agents)

	// Sequential intent takes precedence: "first X then Y" must become a
	// workflow even when a single agent could answer both halves.
	if hasAnyMarker(tokens, sequentialMarkers) {
		if steps := c.planSteps(query, corpus); len(steps) >= 2 {
			targets := stepTargets(steps)
			return domain.Classification{
				Type:    domain.QuerySequential,
				Targets: targets,
				Steps:   steps,
				Score:   1,
			}
		}
	}

	scores := make([]float64, len(corpus))
	for i, terms := range corpus {
		scores[i] = score(tokens, terms.phrases)
	}

	if hasAnyMarker(tokens, collaborativeMarkers) {
		var targets []string
		var best float64
		for i, terms := range corpus {
			if scores[i] >= c.minScore {
				targets = append(targets, terms.agent.ID)
				if scores[i] > best {
					best = scores[i]
				}
			}
		}
		if len(targets) >= 2 {
			return domain.Classification{
				Type:    domain.QueryCollaborative,
				Targets: targets,
				Score:   best,
			}
		}
	}

	bestIdx, bestScore := c.best(tokens, corpus)
	if bestIdx < 0 || bestScore < c.minScore {
		return domain.Classification{Type: domain.QueryUnclassified}
	}
	return domain.Classification{
		Type:    domain.QuerySingleAgent,
		Targets: []string{corpus[bestIdx].agent.ID},
		Score:   bestScore,
	}
}

// best returns the index of the top-scoring agent. Ties go to the agent
// with the longest single matched phrase, then to the lexically smaller id.
func (c *Classifier) best(tokens []string, corpus []agentTerms) (int, float64) {
	bestIdx := -1
	var bestScore, bestLongest float64
	for i, terms := range corpus {
		s := score(tokens, terms.phrases)
		longest := longestMatch(tokens, terms.phrases)
		switch {
		case s > bestScore:
			bestIdx, bestScore, bestLongest = i, s, longest
		case s == bestScore && bestIdx >= 0:
			if longest > bestLongest ||
				(longest == bestLongest && terms.agent.ID < corpus[bestIdx].agent.ID) {
				bestIdx, bestLongest = i, longest
			}
		}
	}
	return bestIdx, bestScore
}

// planSteps splits the query at sequential markers and resolves each
// segment to its best agent. Segments that resolve to no agent are dropped.
func (c *Classifier) planSteps(query string, corpus []agentTerms) []domain.PlannedStep {
	segments := splitSequential(query)
	var steps []domain.PlannedStep
	for _, segment := range segments {
		segTokens := tokenize(segment)
		if len(segTokens) == 0 {
			continue
		}
		idx, s := c.best(segTokens, corpus)
		if idx < 0 || s < c.minScore {
			continue
		}
		steps = append(steps, domain.PlannedStep{
			Text:          strings.TrimSpace(segment),
			AgentID:       corpus[idx].agent.ID,
			DependsOnPrev: len(steps) > 0,
		})
	}
	return steps
}

func stepTargets(steps []domain.PlannedStep) []string {
	seen := make(map[string]bool, len(steps))
	var targets []string
	for _, step := range steps {
		if !seen[step.AgentID] {
			seen[step.AgentID] = true
			targets = append(targets, step.AgentID)
		}
	}
	return targets
}

// score rates how well a token sequence matches an agent's phrases. Longer
// phrases carry more weight (n words score n/(n+1)); the final score is the
// strongest match plus a small bonus per additional matching phrase.
func score(tokens []string, phrases [][]string) float64 {
	var max float64
	matches := 0
	for _, phrase := range phrases {
		if containsPhrase(tokens, phrase) {
			matches++
			w := phraseWeight(len(phrase))
			if w > max {
				max = w
			}
		}
	}
	if matches == 0 {
		return 0
	}
	return max + 0.05*float64(matches-1)
}

func longestMatch(tokens []string, phrases [][]string) float64 {
	var longest float64
	for _, phrase := range phrases {
		if containsPhrase(tokens, phrase) && float64(len(phrase)) > longest {
			longest = float64(len(phrase))
		}
	}
	return longest
}

func phraseWeight(n int) float64 {
	return float64(n) / float64(n+1)
}

func buildCorpus(agents []domain.Agent) []agentTerms {
	corpus := make([]agentTerms, 0, len(agents))
	for _, agent := range agents {
		var phrases [][]string
		for _, tag := range agent.Capabilities {
			phrases = appendPhrase(phrases, strings.ReplaceAll(tag, "_", " "))
		}
		for _, kw := range agent.Keywords {
			phrases = appendPhrase(phrases, kw)
		}
		corpus = append(corpus, agentTerms{agent: agent, phrases: phrases})
	}
	return corpus
}

func appendPhrase(phrases [][]string, raw string) [][]string {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return phrases
	}
	return append(phrases, tokens)
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase appears as a contiguous token run.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, word := range phrase {
			if tokens[i+j] != word {
				continue outer
			}
		}
		return true
	}
	return false
}

func hasAnyMarker(tokens []string, markers []string) bool {
	for _, marker := range markers {
		if containsPhrase(tokens, tokenize(marker)) {
			return true
		}
	}
	return false
}

// splitSequential cuts the query at every sequential marker, preserving
// segment order.
func splitSequential(query string) []string {
	segments := []string{strings.ToLower(query)}
	for _, marker := range sequentialMarkers {
		var next []string
		for _, segment := range segments {
			next = append(next, splitOnMarker(segment, marker)...)
		}
		segments = next
	}
	return segments
}

// splitOnMarker splits s at standalone occurrences of marker.
func splitOnMarker(s, marker string) []string {
	tokens := tokenize(s)
	markerTokens := tokenize(marker)
	if len(markerTokens) == 0 {
		return []string{s}
	}

	var segments []string
	var current []string
	for i := 0; i < len(tokens); {
		if matchAt(tokens, markerTokens, i) {
			if len(current) > 0 {
				segments = append(segments, strings.Join(current, " "))
				current = nil
			}
			i += len(markerTokens)
			continue
		}
		current = append(current, tokens[i])
		i++
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}
	if len(segments) == 0 {
		return []string{s}
	}
	return segments
}

func matchAt(tokens, phrase []string, at int) bool {
	if at+len(phrase) > len(tokens) {
		return false
	}
	for j, word := range phrase {
		if tokens[at+j] != word {
			return false
		}
	}
	return true
}
