package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage names the pipeline stage of a session.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageAwaitingQuality     Stage = "awaiting_quality"
	StageAwaitingCredentials Stage = "awaiting_credentials"
	StageDownloading         Stage = "downloading"
)

// State is the tagged per-session pipeline state. Each variant carries only
// the fields that are valid for its stage.
type State interface {
	Stage() Stage
	isState()
}

// Idle waits for a URL.
type Idle struct{}

// AwaitingQuality holds a resolved URL until the user picks a quality.
type AwaitingQuality struct {
	URL      string
	Metadata Metadata
	Prompt   MessageRef
}

// AwaitingCredentials waits for a cookie upload. URL is empty when the stage
// was entered explicitly rather than by a restricted source.
type AwaitingCredentials struct {
	URL string
}

// Downloading is an acquisition in flight.
type Downloading struct {
	URL      string
	Quality  Quality
	JobID    string
	Metadata Metadata
	Prompt   MessageRef
}

func (Idle) Stage() Stage                { return StageIdle }
func (AwaitingQuality) Stage() Stage     { return StageAwaitingQuality }
func (AwaitingCredentials) Stage() Stage { return StageAwaitingCredentials }
func (Downloading) Stage() Stage         { return StageDownloading }

func (Idle) isState()                {}
func (AwaitingQuality) isState()     {}
func (AwaitingCredentials) isState() {}
func (Downloading) isState()         {}

// Session is the ephemeral per-user pipeline record.
type Session struct {
	ID        int64
	ChatID    int64
	State     State
	Version   uint64
	UpdatedAt time.Time
}

// NewSession returns an idle session.
func NewSession(id, chatID int64) *Session {
	return &Session{ID: id, ChatID: chatID, State: Idle{}, UpdatedAt: time.Now()}
}

// Transition moves the session to next and bumps the version.
func (s *Session) Transition(next State) {
	if next == nil {
		next = Idle{}
	}
	s.State = next
	s.Version++
	s.UpdatedAt = time.Now()
}

// PendingURL returns the URL tracked by the current stage, if any.
func (s *Session) PendingURL() string {
	switch st := s.State.(type) {
	case AwaitingQuality:
		return st.URL
	case AwaitingCredentials:
		return st.URL
	case Downloading:
		return st.URL
	default:
		return ""
	}
}

type sessionRecord struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	Stage     Stage      `json:"stage"`
	URL       string     `json:"url,omitempty"`
	Quality   Quality    `json:"quality,omitempty"`
	JobID     string     `json:"job_id,omitempty"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
	Prompt    MessageRef `json:"prompt"`
	Version   uint64     `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MarshalJSON flattens the tagged state into a stage-discriminated record.
func (s *Session) MarshalJSON() ([]byte, error) {
	rec := sessionRecord{
		ID:        s.ID,
		ChatID:    s.ChatID,
		Stage:     StageIdle,
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
	}
	switch st := s.State.(type) {
	case AwaitingQuality:
		meta := st.Metadata
		rec.Stage, rec.URL, rec.Metadata, rec.Prompt = st.Stage(), st.URL, &meta, st.Prompt
	case AwaitingCredentials:
		rec.Stage, rec.URL = st.Stage(), st.URL
	case Downloading:
		meta := st.Metadata
		rec.Stage, rec.URL, rec.Quality, rec.JobID, rec.Metadata, rec.Prompt = st.Stage(), st.URL, st.Quality, st.JobID, &meta, st.Prompt
	}
	return json.Marshal(rec)
}

// UnmarshalJSON restores the tagged state from a stage-discriminated record.
func (s *Session) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	var meta Metadata
	if rec.Metadata != nil {
		meta = *rec.Metadata
	}

	s.ID, s.ChatID, s.Version, s.UpdatedAt = rec.ID, rec.ChatID, rec.Version, rec.UpdatedAt
	switch rec.Stage {
	case StageIdle, "":
		s.State = Idle{}
	case StageAwaitingQuality:
		s.State = AwaitingQuality{URL: rec.URL, Metadata: meta, Prompt: rec.Prompt}
	case StageAwaitingCredentials:
		s.State = AwaitingCredentials{URL: rec.URL}
	case StageDownloading:
		if rec.URL == "" {
			return fmt.Errorf("downloading session %d without url", rec.ID)
		}
		s.State = Downloading{URL: rec.URL, Quality: rec.Quality, JobID: rec.JobID, Metadata: meta, Prompt: rec.Prompt}
	default:
		return fmt.Errorf("unknown session stage %q", rec.Stage)
	}
	return nil
}
