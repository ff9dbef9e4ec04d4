package handler

import (
	"simrelease/internal/liberation"
)

// ResultResponse is one entry of the liberation results.
type ResultResponse struct {
	Sim     string `json:"sim"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LiberateResponse is the body returned by POST /sim/creation-liberation.
type LiberateResponse struct {
	Success bool             `json:"success"`
	Results []ResultResponse `json:"results,omitempty"`
	Message string           `json:"message"`
}

func fromOutcomes(outcomes []liberation.Outcome) *LiberateResponse {
	results := make([]ResultResponse, len(outcomes))
	for i, o := range outcomes {
		results[i] = ResultResponse{Sim: o.Sim, Status: string(o.Status), Message: o.Message}
	}
	return &LiberateResponse{
		Success: true,
		Results: results,
		Message: liberation.Summarize(outcomes).Message(),
	}
}
