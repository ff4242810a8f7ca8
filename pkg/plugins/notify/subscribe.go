// Package notify forwards sync events to external services.
package notify

import (
	"fmt"
	"strings"

	"github.com/mywio/task-sync/pkg/core"
)

// DefaultSubscription is used when a section has no "subscribe" key.
const DefaultSubscription = "notify_*"

func normalizePatterns(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// parseSubscribePatterns accepts a list, a comma separated string or a scalar.
func parseSubscribePatterns(section map[string]any) []string {
	raw, ok := section["subscribe"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return normalizePatterns(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return normalizePatterns(out)
	case string:
		return normalizePatterns(strings.Split(v, ","))
	default:
		return normalizePatterns([]string{fmt.Sprint(v)})
	}
}

// subscriptions returns the configured patterns, or the default one when the
// section does not mention "subscribe" at all.
func subscriptions(section map[string]any) []string {
	if _, ok := section["subscribe"]; !ok {
		return []string{DefaultSubscription}
	}
	return parseSubscribePatterns(section)
}

// formatMessage renders an event as a short human readable text.
func formatMessage(event core.InternalEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", event.Type)
	if event.Category != "" {
		fmt.Fprintf(&b, " (%s)", event.Category)
	}
	if event.String != "" {
		b.WriteString(" " + event.String)
	}
	if msg, ok := event.Details["error"]; ok && !strings.Contains(event.String, fmt.Sprint(msg)) {
		fmt.Fprintf(&b, "\n%v", msg)
	}
	return b.String()
}
