package formula

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// templateRef matches `{{dotted.path}}` placeholders.
var templateRef = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\[\]]+)\s*\}\}`)

// Substitute replaces every `{{path}}` reference in tpl with the
// dotted-path lookup of root, returning an empty string for any path
// that doesn't resolve. This is distinct from formula evaluation (spec
// §4.2): it is used by the action system and event-interpretation
// rules against arbitrary JSON-shaped payloads, so it is implemented on
// top of gjson's path walker (the same library the rest of the pack
// reaches for when pulling fields out of ad hoc JSON) rather than
// duplicating a second path-resolution engine.
func Substitute(tpl string, root any) string {
	data, err := marshalForGJSON(root)
	if err != nil {
		return templateRef.ReplaceAllString(tpl, "")
	}
	return templateRef.ReplaceAllStringFunc(tpl, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		res := gjson.GetBytes(data, path)
		if !res.Exists() {
			return ""
		}
		return res.String()
	})
}

func marshalForGJSON(root any) ([]byte, error) {
	if b, ok := root.([]byte); ok {
		return b, nil
	}
	return json.Marshal(root)
}
