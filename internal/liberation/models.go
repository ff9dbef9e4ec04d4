package liberation

import (
	"fmt"

	"simrelease/internal/registry"
)

// OutcomeStatus is the per-identifier result class.
type OutcomeStatus string

const (
	StatusSuccess  OutcomeStatus = "success"
	StatusError    OutcomeStatus = "error"
	StatusNotFound OutcomeStatus = "notFound"
)

// Outcome is the result for one raw input. Serial is nil when the input did
// not normalize to a valid serial number.
type Outcome struct {
	Sim     string        `json:"sim"`
	Serial  *string       `json:"serial,omitempty"`
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
}

// Request is one liberation call. Actor, Role and ClientIP are recorded on
// every audit entry; when empty they are taken from the request context.
type Request struct {
	Identifiers []string
	Environment registry.Environment
	Actor       string
	Role        string
	ClientIP    string
	Batch       bool
}

// Summary counts outcomes for the response message.
type Summary struct {
	Processed int
	Anomalies int
}

// Summarize counts successes and everything else.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			s.Processed++
		} else {
			s.Anomalies++
		}
	}
	return s
}

func (s Summary) Message() string {
	return fmt.Sprintf("%d SIM processed successfully, %d anomalies.", s.Processed, s.Anomalies)
}

const (
	msgInvalid            = "Invalid SIM number"
	msgUnknownProd        = "Unknown status"
	msgUnknownUAT         = "Unknown UAT status"
	msgBlockedProd        = "SIM blocked in PROD"
	msgNotFoundAfterMake  = "SIM not found after creation in UAT"
	msgUpdatedAndAucUAT   = "SIM updated & AUC created in UAT"
	msgCreatedAndAucUAT   = "SIM created & AUC created in UAT"
	msgInternalProcessing = "internal error"
)

func msgNotFound(env registry.Environment) string {
	return fmt.Sprintf("SIM not found in %s", env)
}

func msgAlreadyFree(env registry.Environment) string {
	return fmt.Sprintf("Already free in %s", env)
}

func msgAlreadyActive(env registry.Environment) string {
	return fmt.Sprintf("Already active in %s", env)
}

func msgLiberated(env registry.Environment) string {
	return fmt.Sprintf("SIM liberated & AUC created in %s", env)
}

func msgFailed(env registry.Environment, err error) string {
	return fmt.Sprintf("Processing failed in %s: %v", env, err)
}
