package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// truncatedMarker matches the "[+1234 chars]" suffix NewsAPI appends to content
// snippets.
var truncatedMarker = regexp.MustCompile(`\[\+(\d+) chars\]\s*$`)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// stringField returns raw[key] as a trimmed string. Non-string scalars are
// formatted; nil, maps and slices yield "".
func stringField(raw domain.RawArticle, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	return asString(v)
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case bool, int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// firstPresent returns the first key present in raw as a string.
func firstPresent(raw domain.RawArticle, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return asString(v), true
		}
	}
	return "", false
}

// sourceField accepts either a plain string or an object with a name or id.
func sourceField(raw domain.RawArticle) string {
	switch v := raw["source"].(type) {
	case map[string]any:
		if name := asString(v["name"]); name != "" {
			return name
		}
		return asString(v["id"])
	case map[string]string:
		if name := strings.TrimSpace(v["name"]); name != "" {
			return name
		}
		return strings.TrimSpace(v["id"])
	default:
		return asString(v)
	}
}

// timeField parses the first present key as a timestamp.
func timeField(raw domain.RawArticle, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return time.Time{}, false
			}
			return t, true
		case *time.Time:
			if t == nil || t.IsZero() {
				return time.Time{}, false
			}
			return *t, true
		default:
			return parseTime(asString(v))
		}
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// intField reads a non-negative integer from raw[key].
func intField(raw domain.RawArticle, key string) (int, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, t >= 0
	case int64:
		return int(t), t >= 0
	case float64:
		if t < 0 || t > math.MaxInt32 || t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil && n >= 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil && n >= 0
	default:
		return 0, false
	}
}

// contentSize estimates the full content size in bytes. NewsAPI only returns the
// first ~200 characters and appends the remainder's length as "[+N chars]".
func contentSize(content string) int {
	size := len(content)
	if m := truncatedMarker.FindStringSubmatch(content); m != nil {
		if extra, err := strconv.Atoi(m[1]); err == nil {
			size += extra
		}
	}
	return size
}

// stripHTML removes markup from s and collapses whitespace. Text without a '<'
// is only trimmed.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
