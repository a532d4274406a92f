package ai

import (
	"context"
	"errors"
	"strings"
)

const (
	DefaultTitle   = "Untitled Thesis"
	DefaultSummary = "No summary generated."

	defaultVerdict = "no"
)

const (
	classifyPrompt = "You are an academic checker. Determine if the following text belongs to an academic thesis. Respond only 'yes' or 'no'. Text:\n"
	titlePrompt    = "Generate a concise academic thesis title (max 100 characters) for this text, keep in mind to only suggest one title:\n"
	summaryPrompt  = "Summarize this academic thesis text in 3-5 sentences, keep under 500 characters:\n"
)

// ThesisAnalyzer issues the classification, summary and title prompts.
// Timeouts and retries belong to the Completer.
type ThesisAnalyzer struct {
	completer Completer
}

func NewThesisAnalyzer(completer Completer) *ThesisAnalyzer {
	return &ThesisAnalyzer{completer: completer}
}

// Classify returns the lowercased verdict, "no" when the model gave no text.
func (a *ThesisAnalyzer) Classify(ctx context.Context, payload string) (string, error) {
	text, err := a.complete(ctx, classifyPrompt+payload, defaultVerdict)
	if err != nil {
		return "", err
	}
	return strings.ToLower(text), nil
}

func (a *ThesisAnalyzer) Summarize(ctx context.Context, payload string) (string, error) {
	return a.complete(ctx, summaryPrompt+payload, DefaultSummary)
}

func (a *ThesisAnalyzer) Title(ctx context.Context, payload string) (string, error) {
	return a.complete(ctx, titlePrompt+payload, DefaultTitle)
}

// IsThesisVerdict reports whether a classifier answer counts as a yes.
func IsThesisVerdict(verdict string) bool {
	return strings.Contains(strings.ToLower(verdict), "yes")
}

func (a *ThesisAnalyzer) complete(ctx context.Context, prompt, fallback string) (string, error) {
	text, err := a.completer.Complete(ctx, prompt)
	if errors.Is(err, ErrNoCompletion) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return fallback, nil
	}
	return text, nil
}
