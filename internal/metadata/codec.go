// Package metadata encodes structured fields into the free-text description
// of a provider event. Google Calendar has no first-class custom fields, so
// priority and category travel inside a single marker line appended to the
// human-authored text.
package metadata

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/bujo/bujo/internal/logging"
)

// Marker prefixes the metadata line. The exact form is a wire contract with
// events already written to the provider; do not change it.
const Marker = "BUJO_META"

var markerRe = regexp.MustCompile(Marker + `:\s*(\{.*\})`)

// Encode returns the marker line carrying the non-empty fields, or an empty
// string when there is nothing to carry. Keys are omitted rather than null.
func Encode(priority, category string) string {
	meta := make(map[string]string, 2)
	if priority != "" {
		meta["priority"] = priority
	}
	if category != "" {
		meta["category"] = category
	}
	if len(meta) == 0 {
		return ""
	}

	body, err := json.Marshal(meta)
	if err != nil {
		// Map of strings cannot fail to marshal; keep the contract anyway.
		return ""
	}
	return fmt.Sprintf("%s: %s", Marker, body)
}

// Append attaches an encoded fragment to the human-authored description,
// separated by a blank line. The user's text is never replaced.
func Append(description, fragment string) string {
	if fragment == "" {
		return description
	}
	return description + "\n\n" + fragment
}

// Decode extracts the metadata object embedded in a description. A missing
// marker or a malformed body yields an empty map; corrupt metadata is logged
// and must never block a sync.
func Decode(description string) map[string]any {
	if description == "" {
		return map[string]any{}
	}

	m := markerRe.FindStringSubmatch(description)
	if m == nil {
		return map[string]any{}
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(m[1]), &meta); err != nil {
		logging.Warn("failed to parse %s block: %s", Marker, m[1])
		return map[string]any{}
	}
	return meta
}

// Fields pulls the priority and category strings out of a decoded block.
func Fields(meta map[string]any) (priority, category string) {
	if v, ok := meta["priority"].(string); ok {
		priority = v
	}
	if v, ok := meta["category"].(string); ok {
		category = v
	}
	return priority, category
}
