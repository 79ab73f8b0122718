package output

import (
	json "github.com/goccy/go-json"
)

// JSONFormatter serializes the report as pretty-printed JSON, wrapped in an
// identified envelope.
type JSONFormatter struct{}

func (JSONFormatter) Name() string { return "json" }

func (JSONFormatter) Format(report *Report) ([]byte, error) {
	return json.MarshalIndent(NewEnvelope(report), "", "  ")
}
