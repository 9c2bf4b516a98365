package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// Strategy selects which response shapes the extractor looks for.
type Strategy string

const (
	// StrategyAuto tries the flat shape first and then the nested one.
	StrategyAuto Strategy = "auto"
	// StrategyFlat reads text/response/result/output from the top-level object.
	StrategyFlat Strategy = "flat"
	// StrategyNested reads the Langflow run payload outputs[0].outputs[0].results.message.
	StrategyNested Strategy = "nested"
)

// Fallback decides what happens when no shape matches.
type Fallback string

const (
	// FallbackStringify returns the whole body rendered as compact JSON.
	FallbackStringify Fallback = "stringify"
	// FallbackStrict fails with a ResponseFormatError.
	FallbackStrict Fallback = "strict"
)

// Shape records which extractor produced a reply.
type Shape string

const (
	ShapeFlat     Shape = "flat"
	ShapeNested   Shape = "nested"
	ShapeFallback Shape = "fallback"
)

// Reply is the text extracted from an agent response.
type Reply struct {
	Text  string `json:"text"`
	Shape Shape  `json:"shape"`
	Field string `json:"field,omitempty"`
}

var flatFields = []string{"text", "response", "result", "output"}

var nestedPaths = [][]string{
	{"outputs", "[0]", "outputs", "[0]", "results", "message", "data", "text"},
	{"outputs", "[0]", "outputs", "[0]", "results", "message", "text"},
}

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch s := Strategy(value); s {
	case StrategyAuto, StrategyFlat, StrategyNested:
		return s, nil
	case "":
		return StrategyAuto, nil
	default:
		return "", fmt.Errorf("unknown response strategy %q", value)
	}
}

// ParseFallback converts a configuration value into a Fallback.
func ParseFallback(value string) (Fallback, error) {
	switch f := Fallback(value); f {
	case FallbackStringify, FallbackStrict:
		return f, nil
	case "":
		return FallbackStringify, nil
	default:
		return "", fmt.Errorf("unknown response fallback %q", value)
	}
}

// Extractor pulls the reply text out of a JSON response body.
type Extractor struct {
	Strategy Strategy
	Fallback Fallback
}

// Extract returns the reply text found in body. Matched values that are empty
// strings or null do not count as a match.
func (e Extractor) Extract(body []byte) (Reply, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return Reply{}, &ResponseFormatError{Reason: "body is not valid JSON", Body: truncate(body)}
	}

	strategy := e.Strategy
	if strategy == "" {
		strategy = StrategyAuto
	}

	if strategy == StrategyAuto || strategy == StrategyFlat {
		if reply, ok := extractFlat(body); ok {
			return reply, nil
		}
	}
	if strategy == StrategyAuto || strategy == StrategyNested {
		if reply, ok := extractNested(body); ok {
			return reply, nil
		}
	}

	if e.Fallback == FallbackStrict {
		return Reply{}, &ResponseFormatError{
			Reason: fmt.Sprintf("no %s response shape matched", strategy),
			Body:   truncate(body),
		}
	}

	text, err := stringify(body)
	if err != nil {
		return Reply{}, &ResponseFormatError{Reason: "cannot render body", Body: truncate(body), Err: err}
	}
	return Reply{Text: text, Shape: ShapeFallback}, nil
}

func extractFlat(body []byte) (Reply, bool) {
	if _, dataType, _, err := jsonparser.Get(body); err != nil || dataType != jsonparser.Object {
		return Reply{}, false
	}

	for _, field := range flatFields {
		if text, ok := lookup(body, field); ok {
			return Reply{Text: text, Shape: ShapeFlat, Field: field}, true
		}
	}
	return Reply{}, false
}

func extractNested(body []byte) (Reply, bool) {
	for _, path := range nestedPaths {
		if text, ok := lookup(body, path...); ok {
			return Reply{Text: text, Shape: ShapeNested, Field: joinPath(path)}, true
		}
	}
	return Reply{}, false
}

func lookup(body []byte, keys ...string) (string, bool) {
	value, dataType, _, err := jsonparser.Get(body, keys...)
	if err != nil {
		return "", false
	}

	switch dataType {
	case jsonparser.String:
		text, err := jsonparser.ParseString(value)
		if err != nil || text == "" {
			return "", false
		}
		return text, true
	case jsonparser.Null, jsonparser.NotExist, jsonparser.Unknown:
		return "", false
	default:
		return string(value), true
	}
}

func stringify(body []byte) (string, error) {
	value, dataType, _, err := jsonparser.Get(body)
	if err == nil && dataType == jsonparser.String {
		return jsonparser.ParseString(value)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func joinPath(path []string) string {
	var buf bytes.Buffer
	for i, key := range path {
		if i > 0 && key[0] != '[' {
			buf.WriteByte('.')
		}
		buf.WriteString(key)
	}
	return buf.String()
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
