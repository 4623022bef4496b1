package models

import (
	"regexp"
	"strings"
)

// ParsedMessage is an assistant reply split into its reasoning and the part shown to the user.
type ParsedMessage struct {
	ThinkingContent string
	DisplayContent  string
	HasThinking     bool
}

var (
	thinkBlockRe = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	thinkOpenRe  = regexp.MustCompile(`(?is)^<think>(.*)$`)
)

// ParseThinking extracts the reasoning wrapped in <think> tags that some models (qwen, deepseek,
// phi) emit before their answer. Only the first complete block is extracted. While a reply is
// still streaming the closing tag may be missing; in that case everything after the opening tag
// is reasoning and there is nothing to display yet.
func ParseThinking(content string) ParsedMessage {
	if loc := thinkBlockRe.FindStringSubmatchIndex(content); loc != nil {
		return ParsedMessage{
			ThinkingContent: strings.TrimSpace(content[loc[2]:loc[3]]),
			DisplayContent:  strings.TrimSpace(content[:loc[0]] + content[loc[1]:]),
			HasThinking:     true,
		}
	}

	if m := thinkOpenRe.FindStringSubmatch(content); m != nil {
		return ParsedMessage{
			ThinkingContent: strings.TrimSpace(m[1]),
			HasThinking:     true,
		}
	}

	return ParsedMessage{DisplayContent: content}
}

// HasThinkingContent reports whether content contains a complete <think> block.
func HasThinkingContent(content string) bool {
	return thinkBlockRe.MatchString(content)
}

// ExtractThinkingContent returns the trimmed content of the first complete <think> block.
func ExtractThinkingContent(content string) (string, bool) {
	m := thinkBlockRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// RemoveThinkingContent removes every complete <think> block from content.
func RemoveThinkingContent(content string) string {
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(content, ""))
}
