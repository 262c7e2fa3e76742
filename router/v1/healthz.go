package v1

import (
	"time"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/task"
)

// StatusAvailable is the only status value this system's /healthz reports:
// the process replies at all, or it doesn't.
const StatusAvailable = "available"

// HealthZResponse is the /healthz payload: process liveness, how long it
// has been since the signer last resynchronized its sequence number with
// the chain, and every supervised task's current state.
type HealthZResponse struct {
	Status              string            `json:"status"`
	SignerSequenceAgeMS int64             `json:"signer_sequence_age_ms"`
	Tasks               map[string]string `json:"tasks"`
}

// SignerStatus is the narrow signer surface /healthz reports on.
type SignerStatus interface {
	SequenceAge() time.Duration
}

// SupervisorStatus is the narrow supervisor surface /healthz reports on.
type SupervisorStatus interface {
	TaskStates() map[string]task.State
}
