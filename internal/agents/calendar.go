package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const calendarAPIBase = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

// calendarAction is the closed set of operations the calendar agent supports.
type calendarAction string

const (
	calendarCreate  calendarAction = "create"
	calendarUpdate  calendarAction = "update"
	calendarDelete  calendarAction = "delete"
	calendarCheck   calendarAction = "check"
	calendarExtract calendarAction = "extract"
)

// calendarRequest is the structured form the LLM translates a query into.
// Each action has its own required fields, checked by validate.
type calendarRequest struct {
	Action         calendarAction `json:"action"`
	EventName      string         `json:"event_name"`
	StartTime      string         `json:"start_time"`
	EndTime        string         `json:"end_time"`
	PotentialStart string         `json:"potential_start"`
	PotentialEnd   string         `json:"potential_end"`
}

func (r *calendarRequest) validate() error {
	switch r.Action {
	case calendarCreate:
		if r.EventName == "" || r.StartTime == "" {
			return fmt.Errorf("create needs event_name and start_time")
		}
	case calendarUpdate, calendarDelete:
		if r.EventName == "" && (r.PotentialStart == "" || r.PotentialEnd == "") {
			return fmt.Errorf("%s needs event_name or a potential_start/potential_end window", r.Action)
		}
	case calendarCheck:
		if r.StartTime == "" && r.PotentialStart == "" {
			return fmt.Errorf("check needs a time or a window")
		}
	case calendarExtract:
		// window optional, defaults to today
	default:
		return fmt.Errorf("unsupported action %q", r.Action)
	}
	return nil
}

type calendarEvent struct {
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary,omitempty"`
	Start   struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"start,omitempty"`
	End struct {
		DateTime string `json:"dateTime,omitempty"`
		Date     string `json:"date,omitempty"`
	} `json:"end,omitempty"`
}

// CalendarAgent manages Google Calendar events.
type CalendarAgent struct {
	deps Deps
	cred *token.ValidCredential
	now  func() time.Time
}

// NewCalendarAgent builds the calendar agent over a valid Google credential.
func NewCalendarAgent(deps Deps, cred *token.ValidCredential) Agent {
	return &CalendarAgent{deps: deps, cred: cred, now: time.Now}
}

func (a *CalendarAgent) systemPrompt() string {
	return fmt.Sprintf(`You are an AI assistant that helps manage calendar events.
Today's date is %s. Interpret all dates relative to it.

Always respond with a single pure JSON object, double quotes, no extra text. Keys:
{"action", "event_name", "start_time", "end_time"}

Times must be RFC3339, e.g. "2025-03-01T15:00:00Z".
Supported actions: "create", "update", "delete", "check", "extract".
If the user updates or deletes without exact times, include "potential_start" and "potential_end" defining a search window.
If no end time is given for create, assume the event lasts 1 hour.`, a.now().Format("2006-01-02"))
}

// HandleQuery translates the query into a typed calendar action and runs it.
func (a *CalendarAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	raw, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: a.systemPrompt()},
		{Role: "user", Content: query},
	}, 0)
	if err != nil {
		return "", fmt.Errorf("calendar analysis: %w", err)
	}

	var req calendarRequest
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &req); err != nil {
		return "", fmt.Errorf("calendar analysis returned invalid JSON: %w", err)
	}
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("calendar request: %w", err)
	}

	switch req.Action {
	case calendarCreate:
		return a.create(ctx, req)
	case calendarExtract:
		return a.extract(ctx, req)
	case calendarCheck:
		return a.check(ctx, req)
	case calendarUpdate, calendarDelete:
		return a.modify(ctx, req)
	}
	return "", fmt.Errorf("unsupported action %q", req.Action)
}

func (a *CalendarAgent) create(ctx context.Context, req calendarRequest) (string, error) {
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return "", fmt.Errorf("parse start time %q: %w", req.StartTime, err)
	}
	end := start.Add(time.Hour)
	if req.EndTime != "" {
		if parsed, err := time.Parse(time.RFC3339, req.EndTime); err == nil {
			end = parsed
		}
	}

	event := calendarEvent{Summary: req.EventName}
	event.Start.DateTime = start.Format(time.RFC3339)
	event.End.DateTime = end.Format(time.RFC3339)

	var created calendarEvent
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodPost, calendarAPIBase, a.cred.AccessToken, event, &created); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return fmt.Sprintf("Scheduled %q from %s to %s.", req.EventName, start.Format("Mon Jan 2 15:04"), end.Format("15:04")), nil
}

func (a *CalendarAgent) window(req calendarRequest) (time.Time, time.Time) {
	start := a.now().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	if req.PotentialStart != "" {
		if t, err := time.Parse(time.RFC3339, req.PotentialStart); err == nil {
			start = t
		}
	} else if req.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, req.StartTime); err == nil {
			start = t.Add(-time.Hour)
		}
	}
	if req.PotentialEnd != "" {
		if t, err := time.Parse(time.RFC3339, req.PotentialEnd); err == nil {
			end = t
		}
	} else if req.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, req.EndTime); err == nil {
			end = t.Add(time.Hour)
		}
	} else if req.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, req.StartTime); err == nil {
			end = t.Add(2 * time.Hour)
		}
	}
	return start, end
}

func (a *CalendarAgent) list(ctx context.Context, from, to time.Time) ([]calendarEvent, error) {
	params := url.Values{}
	params.Set("timeMin", from.UTC().Format(time.RFC3339))
	params.Set("timeMax", to.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	var result struct {
		Items []calendarEvent `json:"items"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, calendarAPIBase+"?"+params.Encode(), a.cred.AccessToken, nil, &result); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return result.Items, nil
}

func (a *CalendarAgent) extract(ctx context.Context, req calendarRequest) (string, error) {
	from, to := a.window(req)
	events, err := a.list(ctx, from, to)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "No events scheduled in that period.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d event(s):\n", len(events))
	for _, e := range events {
		b.WriteString("- " + formatEvent(e) + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *CalendarAgent) check(ctx context.Context, req calendarRequest) (string, error) {
	from, to := a.window(req)
	events, err := a.list(ctx, from, to)
	if err != nil {
		return "", err
	}
	for _, e := range events {
		if req.EventName == "" || strings.EqualFold(e.Summary, req.EventName) {
			return fmt.Sprintf("Yes, %s is on your calendar.", formatEvent(e)), nil
		}
	}
	return "No matching event in that time range.", nil
}

// modify resolves the target event inside the window, then updates or deletes
// it. An ambiguous match returns the candidates instead of guessing.
func (a *CalendarAgent) modify(ctx context.Context, req calendarRequest) (string, error) {
	from, to := a.window(req)
	events, err := a.list(ctx, from, to)
	if err != nil {
		return "", err
	}

	var matches []calendarEvent
	for _, e := range events {
		if req.EventName == "" || strings.Contains(strings.ToLower(e.Summary), strings.ToLower(req.EventName)) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return "I couldn't find a matching event in that time range.", nil
	case 1:
		target := matches[0]
		if req.Action == calendarDelete {
			if err := doJSON(ctx, a.deps.httpClient(), http.MethodDelete, calendarAPIBase+"/"+target.ID, a.cred.AccessToken, nil, nil); err != nil {
				return "", fmt.Errorf("delete event: %w", err)
			}
			return fmt.Sprintf("Deleted %s.", formatEvent(target)), nil
		}

		patch := calendarEvent{Summary: req.EventName}
		if req.StartTime != "" {
			patch.Start.DateTime = req.StartTime
			end := req.EndTime
			if end == "" {
				if t, err := time.Parse(time.RFC3339, req.StartTime); err == nil {
					end = t.Add(time.Hour).Format(time.RFC3339)
				}
			}
			patch.End.DateTime = end
		}
		if err := doJSON(ctx, a.deps.httpClient(), http.MethodPatch, calendarAPIBase+"/"+target.ID, a.cred.AccessToken, patch, nil); err != nil {
			return "", fmt.Errorf("update event: %w", err)
		}
		return fmt.Sprintf("Updated %s.", formatEvent(target)), nil
	default:
		var b strings.Builder
		b.WriteString("I found several candidate events, please be more specific:\n")
		for _, e := range matches {
			b.WriteString("- " + formatEvent(e) + "\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

func formatEvent(e calendarEvent) string {
	when := e.Start.DateTime
	if when == "" {
		when = e.Start.Date
	}
	if t, err := time.Parse(time.RFC3339, when); err == nil {
		when = t.Format("Mon Jan 2 15:04")
	}
	return fmt.Sprintf("%q at %s", e.Summary, when)
}
