package assistant

import (
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/valyala/fastjson"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// DecodeStatus tags the outcome of a best-effort decode.
type DecodeStatus int

const (
	// Unparsed means no usable JSON object was found in the text.
	Unparsed DecodeStatus = iota
	// Parsed means Value holds a decoded JSON object.
	Parsed
)

// Decoded is the result of DecodeObject. Reason explains an Unparsed result.
type Decoded struct {
	Status DecodeStatus
	Value  *fastjson.Value
	Reason string
}

// ExtractObject returns the first balanced {...} span in text. Braces inside
// JSON string literals are ignored.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeObject locates and decodes the first JSON object in free-form model
// output. Comments and trailing commas are tolerated. It never fails; the
// caller inspects Status.
func DecodeObject(text string) Decoded {
	raw, ok := ExtractObject(text)
	if !ok {
		return Decoded{Status: Unparsed, Reason: "no json object found"}
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(jsonc.ToJSON([]byte(raw)))
	if err != nil {
		return Decoded{Status: Unparsed, Reason: fmt.Sprintf("parse: %v", err)}
	}
	if v.Type() != fastjson.TypeObject {
		return Decoded{Status: Unparsed, Reason: "not an object"}
	}
	return Decoded{Status: Parsed, Value: v}
}

func stringField(v *fastjson.Value, keys ...string) string {
	for _, key := range keys {
		field := v.Get(key)
		if field == nil || field.Type() != fastjson.TypeString {
			continue
		}
		if s := strings.TrimSpace(string(field.GetStringBytes())); s != "" {
			return s
		}
	}
	return ""
}

// stringList reads an array of strings, skipping non-string or blank items.
// A bare string is treated as a one-element list.
func stringList(v *fastjson.Value, key string) []string {
	field := v.Get(key)
	if field == nil {
		return nil
	}
	if field.Type() == fastjson.TypeString {
		if s := strings.TrimSpace(string(field.GetStringBytes())); s != "" {
			return []string{s}
		}
		return nil
	}
	items, err := field.Array()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type() != fastjson.TypeString {
			continue
		}
		if s := strings.TrimSpace(string(item.GetStringBytes())); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// remoteSummary is the decoded shape of a summarisation reply.
type remoteSummary struct {
	Summary  string
	Insights []models.Insight
}

func decodeSummary(v *fastjson.Value) remoteSummary {
	out := remoteSummary{Summary: stringField(v, "summary")}
	items := v.GetArray("insights")
	for _, item := range items {
		if insight, ok := coerceInsight(item, len(out.Insights)+1); ok {
			out.Insights = append(out.Insights, insight)
		}
	}
	return out
}

// coerceInsight accepts both the structured insight object and the older
// plain-string form. Unknown severities and categories are defaulted.
func coerceInsight(item *fastjson.Value, position int) (models.Insight, bool) {
	id := fmt.Sprintf("ai-%d", position)
	switch item.Type() {
	case fastjson.TypeString:
		text := strings.TrimSpace(string(item.GetStringBytes()))
		if text == "" {
			return models.Insight{}, false
		}
		return models.Insight{ID: id, Text: text, Severity: models.SeverityInfo, Category: models.CategoryPattern}, true
	case fastjson.TypeObject:
		text := stringField(item, "text", "message", "title")
		if text == "" {
			return models.Insight{}, false
		}
		insight := models.Insight{
			ID:         id,
			Text:       text,
			Severity:   models.Severity(strings.ToLower(stringField(item, "severity"))),
			Category:   models.Category(strings.ToLower(stringField(item, "category"))),
			SearchHint: stringField(item, "searchHint", "search_hint"),
			Services:   stringList(item, "services"),
		}
		if given := stringField(item, "id"); given != "" {
			insight.ID = given
		}
		if !insight.Severity.Valid() {
			insight.Severity = models.SeverityInfo
		}
		if !insight.Category.Valid() {
			insight.Category = models.CategoryPattern
		}
		if count := item.GetInt("count"); count > 0 {
			insight.Count = count
		}
		return insight, true
	default:
		return models.Insight{}, false
	}
}

type remoteAnalysis struct {
	Summary          string
	PossibleCauses   []string
	SuggestedActions []string
}

func decodeAnalysis(v *fastjson.Value) remoteAnalysis {
	return remoteAnalysis{
		Summary:          stringField(v, "summary"),
		PossibleCauses:   stringList(v, "possibleCauses"),
		SuggestedActions: stringList(v, "suggestedActions"),
	}
}

type remoteInvestigation struct {
	Explanation      string
	SuggestedActions []string
}

func decodeInvestigation(v *fastjson.Value) remoteInvestigation {
	return remoteInvestigation{
		Explanation:      stringField(v, "explanation"),
		SuggestedActions: stringList(v, "suggestedActions"),
	}
}
