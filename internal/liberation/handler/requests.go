package handler

import (
	"encoding/json"
	"fmt"
	"strings"

	"simrelease/internal/registry"
	dErrors "simrelease/pkg/domain-errors"
)

// Modes accepted on the liberation endpoint. "fichier" is the legacy name
// for batch kept for existing clients.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
	modeFile   = "fichier"
)

// maxIdentifiers bounds one request.
const maxIdentifiers = 5000

// Identifiers accepts either a JSON string or an array of strings.
type Identifiers struct {
	text  string
	list  []string
	isSet bool
	array bool
}

func (d *Identifiers) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = Identifiers{text: s, isSet: true}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("data must be a string or an array of strings")
	}
	*d = Identifiers{list: list, isSet: true, array: true}
	return nil
}

func (d Identifiers) MarshalJSON() ([]byte, error) {
	if d.array {
		return json.Marshal(d.list)
	}
	return json.Marshal(d.text)
}

// Text builds an Identifiers holding a single string.
func Text(s string) Identifiers { return Identifiers{text: s, isSet: true} }

// List builds an Identifiers holding an array.
func List(items ...string) Identifiers { return Identifiers{list: items, isSet: true, array: true} }

// values returns the non-blank identifiers as sent, so outcomes echo the
// caller's input. A string is split into lines only in batch mode.
func (d Identifiers) values(batch bool) []string {
	var raw []string
	switch {
	case d.array:
		raw = d.list
	case batch:
		raw = strings.Split(strings.ReplaceAll(d.text, "\r\n", "\n"), "\n")
	default:
		raw = []string{d.text}
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

// LiberateRequest is the body of POST /sim/creation-liberation.
type LiberateRequest struct {
	Mode        string      `json:"mode"`
	Data        Identifiers `json:"data"`
	Environment string      `json:"environment"`

	// Populated by Validate
	identifiers []string
	environment registry.Environment
	batch       bool
}

func (r *LiberateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	switch strings.ToLower(strings.TrimSpace(r.Mode)) {
	case "", ModeSingle:
		r.batch = false
	case ModeBatch, modeFile:
		r.batch = true
	default:
		return dErrors.New(dErrors.CodeValidation, "mode must be single or batch")
	}

	env, err := parseEnvironment(r.Environment)
	if err != nil {
		return err
	}
	r.environment = env

	r.identifiers = r.Data.values(r.batch)
	if len(r.identifiers) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "no ICCID provided")
	}
	if len(r.identifiers) > maxIdentifiers {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d identifiers per request", maxIdentifiers))
	}
	return nil
}

// AucRequest is the body of POST /sim/auc. A string is always read as a
// newline-delimited block.
type AucRequest struct {
	Data        Identifiers `json:"data"`
	Environment string      `json:"environment"`

	identifiers []string
	environment registry.Environment
}

func (r *AucRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	env, err := parseEnvironment(r.Environment)
	if err != nil {
		return err
	}
	r.environment = env
	r.identifiers = r.Data.values(true)
	if len(r.identifiers) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "no ICCID provided")
	}
	if len(r.identifiers) > maxIdentifiers {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d identifiers per request", maxIdentifiers))
	}
	return nil
}

// parseEnvironment defaults to UAT.
func parseEnvironment(raw string) (registry.Environment, error) {
	if strings.TrimSpace(raw) == "" {
		return registry.EnvironmentUAT, nil
	}
	env, ok := registry.ParseEnvironment(raw)
	if !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid environment")
	}
	return env, nil
}
