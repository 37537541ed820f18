// Package topics is the catalogue of bus topics the engine publishes on.
// It allows topic definition, documentation and discovery from the CLI.
package topics

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidTopicName is returned when a topic name is not dot-separated lowercase.
	ErrInvalidTopicName = errors.New("topic name must be dot-separated lowercase, e.g. 'battle.events'")

	// ErrMissingDescription is returned when a topic is missing a description.
	ErrMissingDescription = errors.New("topic is missing a description")

	// ErrMissingParameter is returned by Format when a placeholder is left unfilled.
	ErrMissingParameter = errors.New("missing required parameters in topic format")
)

var topicNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// Topic describes one bus topic.
type Topic struct {
	Name        string `json:"name"`
	Module      string `json:"module"`
	Description string `json:"description"`
	// Pattern may contain {param} placeholders that Format fills in.
	Pattern string `json:"pattern"`
	Example string `json:"example"`
}

func (t Topic) String() string {
	return t.Name
}

// Validate checks the topic definition.
func (t Topic) Validate() error {
	if !topicNameRegex.MatchString(t.Name) {
		return fmt.Errorf("%q: %w", t.Name, ErrInvalidTopicName)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%q: %w", t.Name, ErrMissingDescription)
	}
	return nil
}

// Format fills the pattern's placeholders.
func (t Topic) Format(params map[string]string) (string, error) {
	pattern := t.Pattern
	if pattern == "" {
		pattern = t.Name
	}
	result := pattern
	for k, v := range params {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	if strings.ContainsAny(result, "{}") {
		return "", fmt.Errorf("topic %s: %w", t.Name, ErrMissingParameter)
	}
	return result, nil
}
