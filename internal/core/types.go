// Package core defines the fundamental types for bujo.
// Everything else in the system speaks in these types.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// CALENDAR EVENT - the cached mirror of a provider event
// -----------------------------------------------------------------------------

// LocalIDPrefix marks external ids that were generated locally and have not
// been pushed to the provider yet. The first successful push replaces them
// with the provider-assigned id.
const LocalIDPrefix = "local_"

// NewLocalID returns a synthetic placeholder external id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// Event categories. The set is fixed; anything else is treated as absent.
const (
	CategoryTrabajo  = "TRABAJO"
	CategorySalud    = "SALUD"
	CategoryOcio     = "OCIO"
	CategoryRutina   = "RUTINA"
	CategoryPersonal = "PERSONAL"
	CategoryEstudio  = "ESTUDIO"
	CategoryFamilia  = "FAMILIA"
	CategorySocial   = "SOCIAL"
)

// Event statuses, matching the provider vocabulary.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// Event priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Fallback keys used by aggregation maps when the underlying field is empty.
const (
	NoCategory = "SIN_CATEGORIA"
	NoPriority = "SIN_PRIORIDAD"
	NoStatus   = "SIN_STATUS"
	NoSource   = "UNKNOWN"
)

// CalendarEvent is a row in the local event cache. ExternalID is the
// provider-assigned identifier and the join key for upserts; rows created
// locally carry a LocalIDPrefix placeholder until first push.
type CalendarEvent struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`

	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`

	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	AllDay        bool      `json:"all_day"`

	Status   string `json:"status"`   // confirmed, tentative, cancelled
	Priority string `json:"priority"` // low, medium, high, critical
	Category string `json:"category"` // TRABAJO, SALUD, OCIO, ...

	// ExtraData mirrors the metadata block decoded from the provider
	// description. Advisory; regenerated on every push.
	ExtraData map[string]any `json:"extra_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SyncedAt  time.Time `json:"synced_at"`
}

// IsLocal reports whether the event has never been pushed to the provider.
func (e *CalendarEvent) IsLocal() bool {
	return strings.HasPrefix(e.ExternalID, LocalIDPrefix)
}

// Hours returns the event duration in hours.
func (e *CalendarEvent) Hours() float64 {
	return e.EndDatetime.Sub(e.StartDatetime).Seconds() / 3600
}

// Validate checks the invariants enforced before any I/O happens.
func (e *CalendarEvent) Validate() error {
	if strings.TrimSpace(e.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrValidation)
	}
	if e.StartDatetime.IsZero() || e.EndDatetime.IsZero() {
		return fmt.Errorf("%w: start_datetime and end_datetime are required", ErrValidation)
	}
	if !e.EndDatetime.After(e.StartDatetime) {
		return fmt.Errorf("%w: end_datetime must be after start_datetime", ErrValidation)
	}
	return nil
}

// -----------------------------------------------------------------------------
// IDEA / INBOX - append-mostly rows used as aggregation dimensions
// -----------------------------------------------------------------------------

// Idea is a captured thought. Analytics only cares about CreatedAt.
type Idea struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbox item sources.
const (
	SourceManual  = "manual"
	SourceCLI     = "cli"
	SourceWeb     = "web"
	SourceDiscord = "discord"
)

// InboxItem is an unprocessed capture waiting to be triaged.
type InboxItem struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	StatusID  *int64    `json:"status_id,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
