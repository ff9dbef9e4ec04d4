package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"simrelease/internal/registry"
)

// Fixture describes one storage medium and its port for seeding.
type Fixture struct {
	Serial      string       `yaml:"serial"`
	Status      string       `yaml:"status"`
	DealerID    *int64       `yaml:"dealer_id"`
	MediumClass int          `yaml:"medium_class"`
	Port        *PortFixture `yaml:"port"`
}

type PortFixture struct {
	Number     string `yaml:"number"`
	Status     string `yaml:"status"`
	DealerID   *int64 `yaml:"dealer_id"`
	Key        string `yaml:"key"`
	KeyTableID string `yaml:"key_table_id"`
}

// FixtureFile is the dev-mode seed document. Catalog lists the serials the
// UAT creation procedure is able to materialize.
type FixtureFile struct {
	Prod    []Fixture `yaml:"prod"`
	UAT     []Fixture `yaml:"uat"`
	Catalog []Fixture `yaml:"catalog"`
}

// LoadFixtures reads a FixtureFile from path into s.
func (s *Store) LoadFixtures(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read registry fixture: %w", err)
	}
	var ff FixtureFile
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return fmt.Errorf("parse registry fixture %s: %w", path, err)
	}
	s.Seed(registry.EnvironmentProd, ff.Prod...)
	s.Seed(registry.EnvironmentUAT, ff.UAT...)
	s.SeedCatalog(registry.EnvironmentUAT, ff.Catalog...)
	return nil
}

func (f Fixture) medium(id int64) registry.StorageMedium {
	return registry.StorageMedium{
		ID:          id,
		Serial:      f.Serial,
		Status:      registry.DecodeStatus(f.Status),
		StatusCode:  f.Status,
		DealerID:    copyID(f.DealerID),
		MediumClass: f.MediumClass,
	}
}

func (p PortFixture) row(id, mediumID int64) portRow {
	return portRow{
		port: registry.Port{
			ID:         id,
			MediumID:   mediumID,
			Number:     p.Number,
			Status:     registry.DecodeStatus(p.Status),
			StatusCode: p.Status,
			DealerID:   copyID(p.DealerID),
		},
		key:        p.Key,
		keyTableID: p.KeyTableID,
	}
}

// ID is a convenience for building fixtures with nullable ids.
func ID(v int64) *int64 { return &v }

func copyID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
