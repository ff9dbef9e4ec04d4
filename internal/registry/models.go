package registry

import "strings"

// Environment names one of the two independently owned registries.
type Environment string

const (
	EnvironmentProd Environment = "PROD"
	EnvironmentUAT  Environment = "UAT"
)

// ParseEnvironment accepts either environment name in any case.
func ParseEnvironment(s string) (Environment, bool) {
	switch Environment(strings.ToUpper(strings.TrimSpace(s))) {
	case EnvironmentProd:
		return EnvironmentProd, true
	case EnvironmentUAT:
		return EnvironmentUAT, true
	}
	return "", false
}

// StorageMedium is the registry row for a physical or virtual SIM card.
type StorageMedium struct {
	ID     int64
	Serial string
	Status Status
	// StatusCode is the raw stored code, kept so audit rows record exactly
	// what the registry held even when it does not decode.
	StatusCode       string
	DealerID         *int64
	DeliveryID       *int64
	RecordVersion    int
	PrepaidProfileID *int64
	BusinessUnitID   *int64
	MediumClass      int
}

// HeldBy reports whether the medium is released and owned by dealer.
func (m *StorageMedium) HeldBy(dealer int64) bool {
	return m.Status == StatusReleased && m.DealerID != nil && *m.DealerID == dealer
}

// Releasable reports whether the release mutation applies: deactivated, or
// released without any dealer.
func (m *StorageMedium) Releasable() bool {
	return m.Status == StatusDeactivated || (m.Status == StatusReleased && m.DealerID == nil)
}

// Port is the network-facing subscription slot linked one-to-one with a
// storage medium.
type Port struct {
	ID                int64
	MediumID          int64
	Number            string
	Status            Status
	StatusCode        string
	DealerID          *int64
	DirectoryNumberID *int64
	BusinessUnitID    *int64
}

// HeldBy reports whether the port is released and owned by dealer.
func (p *Port) HeldBy(dealer int64) bool {
	return p.Status == StatusReleased && p.DealerID != nil && *p.DealerID == dealer
}

// AucProvisioning is the read-only key material joined from a port and its
// storage medium.
type AucProvisioning struct {
	PortNumber  string
	Key         string
	KeyTableID  string
	MediumClass int
}

// ReleasePolicy holds the fixed values written by the release mutation.
type ReleasePolicy struct {
	ReservedDealerID int64
	BusinessUnitID   int64
	RecordVersion    int
}
