// Package escalation deduplicates recurring audit findings across cycles and
// escalates the ones that keep coming back, turning noisy audit output into a
// bounded stream of actionable alerts.
package escalation

import (
	"crypto/sha256"
	"encoding/hex"
)

// Severity classifies a finding.
type Severity string

// Finding severities. Only critical findings are tracked for escalation.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one audit observation.
type Finding struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

const signatureMessageLen = 200

// Signature returns a finding's content identity: a hash over its severity
// and the first 200 characters of its message. Two findings from different
// cycles with the same wording are the same issue recurring, regardless of
// process restarts in between.
func Signature(f Finding) string {
	msg := f.Message
	if len(msg) > signatureMessageLen {
		msg = msg[:signatureMessageLen]
	}
	sum := sha256.Sum256([]byte(string(f.Severity) + ":" + msg))
	return hex.EncodeToString(sum[:8])
}
