package forecast

import (
	"context"
	"encoding/json"
)

// Query selects what the upstream forecast API should analyse.
type Query struct {
	Countries   []string
	Topics      []string
	Language    string
	TimeHorizon string
	Depth       string
}

// Fetcher retrieves a forecast payload from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*Payload, error)
}

// Payload is the upstream response for one (countries, topics, language) query.
type Payload struct {
	Results []TopicResult `json:"results"`
}

// TopicResult is the per-topic part of the payload.
type TopicResult struct {
	Topic                 string          `json:"topic"`
	Summary               string          `json:"summary"`
	SentimentScoreDisplay float64         `json:"sentimentScoreDisplay"`
	ConvergenceAnalysis   string          `json:"convergenceAnalysis"`
	Sources               []Source        `json:"sources"`
	Metadata              Metadata        `json:"metadata"`
	Error                 json.RawMessage `json:"error,omitempty"`
}

// Failed reports whether the upstream marked this topic as errored.
func (t TopicResult) Failed() bool {
	if len(t.Error) == 0 {
		return false
	}
	switch string(t.Error) {
	case "null", `""`, "false":
		return false
	}
	return true
}

type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Metadata struct {
	Countries    json.RawMessage `json:"countries,omitempty"`
	TimeWindow   string          `json:"timeWindow"`
	OutputMode   string          `json:"outputMode"`
	ArticleCount int             `json:"articleCount"`
}
