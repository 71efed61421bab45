package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/odonto-agent/internal/availability"
	"github.com/wolfman30/odonto-agent/internal/extraction"
	"github.com/wolfman30/odonto-agent/internal/timeutil"
)

// ProfileVersion is the schema version written by this build.
const ProfileVersion = 1

// ErrProfileVersion is returned when a stored profile was written by a newer
// build and cannot be read safely.
var ErrProfileVersion = errors.New("conversation: unsupported profile version")

// Profile accumulates validated fields across the turns of one conversation.
// Extracted fields only ever get set or overwritten, never cleared, except by
// ResetBooking after a cancellation.
type Profile struct {
	Version       int                 `json:"version"`
	FullName      string              `json:"full_name,omitempty"`
	Email         string              `json:"email,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	Procedure     string              `json:"procedure,omitempty"`
	DesiredDate   *civil.Date         `json:"desired_date,omitempty"`
	DesiredTime   *civil.Time         `json:"desired_time,omitempty"`
	DesiredWindow string              `json:"desired_window,omitempty"`
	ProposedSlots []availability.Slot `json:"proposed_slots,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

// NewProfile returns an empty profile at the current version.
func NewProfile() Profile {
	return Profile{Version: ProfileVersion}
}

// legacySlot is the slot shape stored before profiles were versioned.
type legacySlot struct {
	Formatted string `json:"formatted"`
}

// DecodeProfile reads a stored profile. Empty input yields a fresh profile;
// unversioned profiles are upgraded in place.
func DecodeProfile(data []byte) (Profile, error) {
	if len(data) == 0 || string(data) == "null" {
		return NewProfile(), nil
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("conversation: decode profile: %w", err)
	}
	if p.Version > ProfileVersion {
		return Profile{}, fmt.Errorf("%w: %d", ErrProfileVersion, p.Version)
	}
	if p.Version < 1 {
		var legacy struct {
			ProposedSlots []legacySlot `json:"proposed_slots"`
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return Profile{}, fmt.Errorf("conversation: decode legacy profile: %w", err)
		}
		for i := range p.ProposedSlots {
			slot := &p.ProposedSlots[i]
			if slot.Label == "" && i < len(legacy.ProposedSlots) {
				slot.Label = legacy.ProposedSlots[i].Formatted
			}
			if slot.Label == "" {
				slot.Label = timeutil.SlotLabel(slot.Date, slot.Start)
			}
			if slot.Weekday == "" {
				slot.Weekday = timeutil.WeekdayLabel(slot.Date)
			}
		}
		p.Version = ProfileVersion
	}
	return p, nil
}

// Encode serializes the profile at the current version.
func (p Profile) Encode() ([]byte, error) {
	p.Version = ProfileVersion
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode profile: %w", err)
	}
	return data, nil
}

// Merge copies every non-empty validated field into the profile.
func (p *Profile) Merge(f extraction.Fields) {
	if f.FullName != "" {
		p.FullName = f.FullName
	}
	if f.Email != "" {
		p.Email = f.Email
	}
	if f.Procedure != "" {
		p.Procedure = f.Procedure
	}
	if f.Date != nil {
		d := *f.Date
		p.DesiredDate = &d
	}
	if f.Time != nil {
		t := *f.Time
		p.DesiredTime = &t
	}
	if f.Window != "" {
		p.DesiredWindow = f.Window
	}
}

// MissingField names the first field still required before slots can be
// proposed, or "" when nothing is missing.
func (p Profile) MissingField() string {
	switch {
	case p.FullName == "":
		return "nome"
	case p.Procedure == "":
		return "procedimento"
	default:
		return ""
	}
}

// ResetBooking drops everything tied to a specific booking attempt while
// keeping who the client is.
func (p *Profile) ResetBooking() {
	p.Procedure = ""
	p.DesiredDate = nil
	p.DesiredTime = nil
	p.DesiredWindow = ""
	p.ProposedSlots = nil
}
