package templatefmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"text/template"
	"time"

	"alertengine/internal/domain"
)

// TransitionView is the data exposed to announcement templates.
type TransitionView struct {
	ID      string
	Alert   string
	Query   string
	From    string
	To      string
	Message string
	Value   string
	Icon    string
	At      time.Time
}

// FuncMap returns shared announcement template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": FormatDuration,
		"json":        MarshalJSON,
		"upper":       strings.ToUpper,
		"escape":      html.EscapeString,
	}
}

// ParseTransitionTemplate parses one announcement template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseTransitionTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// NewTransitionView flattens a transition for rendering. Text fields are HTML-escaped.
// Params: transition event.
// Returns: template view.
func NewTransitionView(transition domain.Transition) TransitionView {
	message := transition.To.Message
	if transition.Resolved() {
		message = ""
	}
	return TransitionView{
		ID:      transition.ID,
		Alert:   html.EscapeString(string(transition.Alert)),
		Query:   html.EscapeString(string(transition.Query)),
		From:    transition.From.Level.String(),
		To:      transition.To.Level.String(),
		Message: html.EscapeString(message),
		Value:   strconv.FormatFloat(float64(transition.Value), 'g', -1, 64),
		Icon:    levelIcon(transition.To.Level),
		At:      transition.At,
	}
}

// RenderTransition executes tmpl against one transition.
// Params: compiled template and transition.
// Returns: rendered text or execution error.
func RenderTransition(tmpl *template.Template, transition domain.Transition) (string, error) {
	var out bytes.Buffer
	if err := tmpl.Execute(&out, NewTransitionView(transition)); err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(out.String()), nil
}

func levelIcon(level domain.Level) string {
	switch level {
	case domain.LevelCritical:
		return "🔴"
	case domain.LevelWarn:
		return "🟡"
	default:
		return "🟢"
	}
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: template value expected as time.Duration or *time.Duration.
// Returns: formatted duration string.
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed == nil {
			return "0.0s"
		}
		duration = *typed
	default:
		return "0.0s"
	}

	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
