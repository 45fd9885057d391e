package memory

import (
	"math"
	"time"

	"github.com/BaSui01/agentmem/types"
)

// Record is the base memory record embedded in every tier's specialized
// record type. Strength is derived from it, never stored.
type Record struct {
	ID          string                  `json:"id"`
	CreatedAt   time.Time               `json:"created_at"`
	Payload     types.ExperiencePayload `json:"payload"`
	Context     map[string]any          `json:"context,omitempty"`
	AccessCount int                     `json:"access_count"`
	LastAccess  *time.Time              `json:"last_access,omitempty"`
	DecayRate   float64                 `json:"decay_rate"`
}

// Touch records a read: bumps the access count and moves last-access to now.
func (r *Record) Touch(now time.Time) {
	r.AccessCount++
	r.LastAccess = &now
}

// Strength derives the retention score used by every forgetting decision:
// exponential recency decay weighted by access frequency. A record that has
// never been accessed scores 1.0, so fresh memories are not forgotten before
// they had a chance to matter.
func (r *Record) Strength(now time.Time) float64 {
	if r.LastAccess == nil {
		return 1.0
	}
	hours := now.Sub(*r.LastAccess).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Exp(-r.DecayRate * hours)
	frequency := math.Min(1, float64(r.AccessCount)/10)
	return recency * (0.7 + 0.3*frequency)
}
