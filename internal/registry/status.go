package registry

import "strings"

// Status is the lifecycle state shared by storage media and ports.
type Status int

const (
	StatusUnknown Status = iota
	StatusDeactivated
	StatusReleased
	StatusActive
	StatusBlocked
	StatusPending
)

// The registries store status as a single character.
var statusByCode = map[string]Status{
	"d": StatusDeactivated,
	"r": StatusReleased,
	"a": StatusActive,
	"b": StatusBlocked,
	"p": StatusPending,
}

var codeByStatus = map[Status]string{
	StatusDeactivated: "d",
	StatusReleased:    "r",
	StatusActive:      "a",
	StatusBlocked:     "b",
	StatusPending:     "p",
}

// DecodeStatus maps a stored status code to a Status. Unrecognized codes
// decode to StatusUnknown; the raw code is kept on the record for audit.
func DecodeStatus(code string) Status {
	if s, ok := statusByCode[strings.ToLower(strings.TrimSpace(code))]; ok {
		return s
	}
	return StatusUnknown
}

// Code returns the stored representation, or "" for StatusUnknown.
func (s Status) Code() string {
	return codeByStatus[s]
}

func (s Status) String() string {
	switch s {
	case StatusDeactivated:
		return "deactivated"
	case StatusReleased:
		return "released"
	case StatusActive:
		return "active"
	case StatusBlocked:
		return "blocked"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}
