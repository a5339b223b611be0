package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forecast_bot/internal/domain/forecast"
)

const maxListedSources = 5

var (
	ErrTopicFailed  = errors.New("topic marked as failed by upstream")
	ErrEmptySummary = errors.New("topic has no summary")
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Escape makes s safe as text in Telegram's HTML parse mode.
func Escape(s string) string {
	return textEscaper.Replace(s)
}

// Header is the title line prepended to the first part of a broadcast.
func Header(title string, date time.Time) string {
	return fmt.Sprintf("📰 <b>%s</b> · %s", Escape(title), date.Format(time.DateOnly))
}

// FailureNotice is the admin message for a scheduled run that did not deliver.
func FailureNotice(scheduleID int64, title string, date time.Time, summary string) string {
	return fmt.Sprintf("⚠️ Schedule %d (%s) failed for %s: %s",
		scheduleID, Escape(title), date.Format(time.DateOnly), Escape(summary))
}

// HTMLFormatter renders topic results in Telegram's HTML parse mode.
type HTMLFormatter struct{}

func NewHTMLFormatter() *HTMLFormatter {
	return &HTMLFormatter{}
}

// Render returns one message for a topic result.
func (f *HTMLFormatter) Render(result forecast.TopicResult) (string, error) {
	if result.Failed() {
		return "", fmt.Errorf("%w: %s: %s", ErrTopicFailed, result.Topic, strings.Trim(string(result.Error), `"`))
	}
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySummary, result.Topic)
	}

	topic := result.Topic
	if topic == "" {
		topic = "Unknown Topic"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", textEscaper.Replace(topic))
	fmt.Fprintf(&b, "<i>Context: %s | %s | %s</i>\n",
		textEscaper.Replace(countriesLabel(result.Metadata.Countries)),
		textEscaper.Replace(orUnknown(result.Metadata.TimeWindow)),
		textEscaper.Replace(orUnknown(result.Metadata.OutputMode)),
	)
	fmt.Fprintf(&b, "<b>Sentiment:</b> %s\n\n", SentimentLabel(result.SentimentScoreDisplay))
	b.WriteString(textEscaper.Replace(summary))

	if c := strings.TrimSpace(result.ConvergenceAnalysis); c != "" {
		b.WriteString("\n\n<b>Narrative Comparison:</b>\n")
		b.WriteString(textEscaper.Replace(c))
	}

	if len(result.Sources) > 0 {
		b.WriteString("\n\n<b>Sources:</b>")
		for i, src := range result.Sources {
			if i == maxListedSources {
				break
			}
			name := src.Name
			if name == "" {
				name = "Source"
			}
			if src.URL != "" {
				fmt.Fprintf(&b, "\n%d. <a href=\"%s\">%s</a>", i+1, attrEscaper.Replace(src.URL), textEscaper.Replace(name))
			} else {
				fmt.Fprintf(&b, "\n%d. %s", i+1, textEscaper.Replace(name))
			}
		}
		if extra := len(result.Sources) - maxListedSources; extra > 0 {
			fmt.Fprintf(&b, "\n<i>+%d more sources</i>", extra)
		}
	}

	return b.String(), nil
}

// SentimentLabel formats a 0-100 score with its label.
func SentimentLabel(score float64) string {
	label := "Neutral"
	switch {
	case score > 60:
		label = "Positive"
	case score < 40:
		label = "Negative"
	}
	return fmt.Sprintf("%s (%s)", strconv.FormatFloat(score, 'f', -1, 64), label)
}

// countriesLabel accepts either a JSON list or a plain string.
func countriesLabel(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "?"
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "?"
		}
		return strings.Join(list, ", ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return orUnknown(s)
	}
	return string(raw)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
