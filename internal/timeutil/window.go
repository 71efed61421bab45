package timeutil

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// Canonical window labels.
const (
	WindowMorning   = "manhã"
	WindowAfternoon = "tarde"
	WindowEvening   = "noite"
)

// Window is a preferred time-of-day band.
type Window struct {
	Start civil.Time
	End   civil.Time
}

// Windows maps canonical labels to their configured ranges.
type Windows map[string]Window

// DefaultWindows returns 08-12, 12-18 and 18-21.
func DefaultWindows() Windows {
	return Windows{
		WindowMorning:   {Start: civil.Time{Hour: 8}, End: civil.Time{Hour: 12}},
		WindowAfternoon: {Start: civil.Time{Hour: 12}, End: civil.Time{Hour: 18}},
		WindowEvening:   {Start: civil.Time{Hour: 18}, End: civil.Time{Hour: 21}},
	}
}

// NewWindows builds the window set from "HH:MM-HH:MM" specs. A malformed
// spec keeps the default range for that label.
func NewWindows(morning, afternoon, evening string) (Windows, error) {
	windows := DefaultWindows()
	var firstErr error
	for label, spec := range map[string]string{
		WindowMorning:   morning,
		WindowAfternoon: afternoon,
		WindowEvening:   evening,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		w, err := ParseWindowSpec(spec)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("timeutil: window %s: %w", label, err)
			}
			continue
		}
		windows[label] = w
	}
	return windows, firstErr
}

// ParseWindowSpec parses "08:00-12:00".
func ParseWindowSpec(spec string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(spec), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid window %q", spec)
	}
	start, ok := ParseTime(parts[0])
	if !ok {
		return Window{}, fmt.Errorf("invalid window start %q", parts[0])
	}
	end, ok := ParseTime(parts[1])
	if !ok {
		return Window{}, fmt.Errorf("invalid window end %q", parts[1])
	}
	if MinuteOfDay(start) >= MinuteOfDay(end) {
		return Window{}, fmt.Errorf("window %q ends before it starts", spec)
	}
	return Window{Start: start, End: end}, nil
}

// CanonicalWindow normalizes a window label, accepting "manha" for "manhã".
func CanonicalWindow(label string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "manhã", "manha":
		return WindowMorning, true
	case "tarde":
		return WindowAfternoon, true
	case "noite":
		return WindowEvening, true
	}
	return "", false
}

// Resolve returns the range for label. Unknown or empty labels report false.
func (w Windows) Resolve(label string) (Window, bool) {
	canonical, ok := CanonicalWindow(label)
	if !ok {
		return Window{}, false
	}
	win, ok := w[canonical]
	return win, ok
}
