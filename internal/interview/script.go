package interview

import (
	"strings"
	"unicode"
)

// ElaborationPrompt is asked when a candidate answer is too short.
const ElaborationPrompt = "That's interesting! Could you elaborate on that?"

const minAnswerWords = 10

// Topic is one block of the fallback interview script.
type Topic struct {
	Name      string   `json:"topic"`
	Question  string   `json:"question"`
	FollowUps []string `json:"follow_ups"`
}

var defaultTopics = []Topic{
	{
		Name:     "introduction",
		Question: "Hello! I'm your AI interviewer today. Could you please introduce yourself?",
		FollowUps: []string{
			"That's interesting! Could you tell me more about your background?",
			"What made you interested in this field?",
			"What are your main career goals?",
		},
	},
	{
		Name:     "experience",
		Question: "Could you tell me about your relevant experience?",
		FollowUps: []string{
			"What was your most challenging project?",
			"How did you handle difficult situations in your previous roles?",
			"What skills did you develop from these experiences?",
		},
	},
	{
		Name:     "skills",
		Question: "What are your key technical skills?",
		FollowUps: []string{
			"How do you stay updated with new technologies?",
			"Can you give an example of how you applied these skills?",
			"What areas are you looking to improve?",
		},
	},
	{
		Name:     "problem_solving",
		Question: "How do you approach problem-solving in your work?",
		FollowUps: []string{
			"Can you share a specific example?",
			"What was the outcome?",
			"What did you learn from that experience?",
		},
	},
	{
		Name:     "future",
		Question: "Where do you see yourself in the next 5 years?",
		FollowUps: []string{
			"What steps are you taking to achieve these goals?",
			"How does this role align with your career path?",
			"What are you most excited about in your career?",
		},
	},
}

var defaultSkipPhrases = []string{"next question", "move on", "next topic", "skip"}

// ScriptState is the part of a session the script reads.
type ScriptState struct {
	Topic int
	Used  map[string]struct{}
}

// Step is the script's decision for one candidate answer.
type Step struct {
	Text     string
	Topic    int
	Advanced bool
}

// Script is the deterministic fallback interviewer.
type Script struct {
	topics      []Topic
	skipPhrases [][]string
}

func DefaultScript() *Script {
	return NewScript(defaultTopics, defaultSkipPhrases)
}

func NewScript(topics []Topic, skipPhrases []string) *Script {
	s := &Script{topics: topics}
	for _, phrase := range skipPhrases {
		if words := tokenize(phrase); len(words) > 0 {
			s.skipPhrases = append(s.skipPhrases, words)
		}
	}
	return s
}

// Topics returns a copy of the script table.
func (s *Script) Topics() []Topic {
	out := make([]Topic, len(s.topics))
	for i, t := range s.topics {
		out[i] = Topic{Name: t.Name, Question: t.Question, FollowUps: append([]string(nil), t.FollowUps...)}
	}
	return out
}

// Greeting is the first topic's primary question.
func (s *Script) Greeting() Step {
	return Step{Text: s.topics[0].Question, Topic: 0}
}

// TopicName returns the name of topic i, or "" when out of range.
func (s *Script) TopicName(i int) string {
	if i < 0 || i >= len(s.topics) {
		return ""
	}
	return s.topics[i].Name
}

// Next picks the follow-up for a candidate answer. It does not mutate
// state; callers record Step.Topic and Step.Text themselves.
func (s *Script) Next(state ScriptState, answer string) Step {
	topic := state.Topic
	if topic < 0 || topic >= len(s.topics) {
		topic = 0
	}

	words := tokenize(answer)
	if s.wantsSkip(words) {
		return s.advance(topic)
	}
	if len(words) < minAnswerWords {
		return Step{Text: ElaborationPrompt, Topic: topic}
	}

	for _, line := range s.topics[topic].FollowUps {
		if _, used := state.Used[line]; !used {
			return Step{Text: line, Topic: topic}
		}
	}
	return s.advance(topic)
}

func (s *Script) advance(topic int) Step {
	next := (topic + 1) % len(s.topics)
	return Step{Text: s.topics[next].Question, Topic: next, Advanced: true}
}

func (s *Script) wantsSkip(words []string) bool {
	for _, phrase := range s.skipPhrases {
		if containsSequence(words, phrase) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsSequence(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j := range phrase {
			if words[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
