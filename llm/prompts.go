package llm

import (
	"context"
	"strings"
)

const (
	summarizePrefix = "Here is a list of restaurants:\n"
	summarizeSuffix = "\n\nSummarize the list by providing just the restaurant names in format restaruant1, restaurant2, etc"

	recommendPrefix = "Here is the informations about the restaurants that I want you to choose from:\n"
	recommendSuffix = ". I want you to give me one name of the restaurant that you recommend"
)

// SummarizePrompt asks for a comma separated list of the restaurant names
// found in descriptions.
func SummarizePrompt(descriptions []string) string {
	return summarizePrefix + strings.Join(descriptions, "\n") + summarizeSuffix
}

// RecommendPrompt embeds the serialized place details and the user
// preference. The size of aggregate is not checked.
func RecommendPrompt(preference string, aggregate []byte) string {
	return recommendPrefix + string(aggregate) + "\n\n. " + preference + recommendSuffix
}

// Summarize returns the model's answer to SummarizePrompt unvalidated.
func (c *Client) Summarize(ctx context.Context, descriptions []string) (string, error) {
	return c.Complete(ctx, SummarizePrompt(descriptions))
}

// Recommend returns the model's answer to RecommendPrompt unvalidated.
func (c *Client) Recommend(ctx context.Context, preference string, aggregate []byte) (string, error) {
	return c.Complete(ctx, RecommendPrompt(preference, aggregate))
}
