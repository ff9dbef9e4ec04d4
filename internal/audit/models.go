// Package audit records one append-only row per liberation step and per
// login attempt. Writes are best-effort: a failing sink is logged and counted,
// never surfaced to the caller of the audited operation.
package audit

import "time"

// Action identifies the flow that produced an entry.
const (
	ActionProd   = "PROD"
	ActionUAT    = "UAT"
	ActionLogin  = "login"
	ActionLogout = "logout"
)

// Status values mirror the audit table's bit column.
const (
	StatusError   = 0
	StatusSuccess = 1
)

// Entry is one audit row. PriorStatus and PriorDealerID describe the registry
// record before any mutation; both are nil when no record was read.
type Entry struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Status        int       `json:"status"`
	Outcome       string    `json:"outcome,omitempty"`
	Actor         string    `json:"actor"`
	Role          string    `json:"role,omitempty"`
	Serial        string    `json:"serial,omitempty"`
	PriorStatus   *string   `json:"prior_status,omitempty"`
	PriorDealerID *int64    `json:"prior_dealer_id,omitempty"`
	Message       string    `json:"message"`
	ClientIP      string    `json:"client_ip,omitempty"`
	ClientLabel   string    `json:"client_label,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Filter narrows List queries on stores that support reading back.
type Filter struct {
	Serial string
	Actor  string
	Limit  int
}

// Matches reports whether e passes f. An empty filter matches everything.
func (f Filter) Matches(e Entry) bool {
	if f.Serial != "" && e.Serial != f.Serial {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}
