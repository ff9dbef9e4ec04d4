package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var defaultRoles = Roles{
	{Group: "ADM Support 1515 Group", Role: "support1515"},
	{Group: "CRM IT Team", Role: "crm_it_team"},
	{Group: "Digital Factory Group", Role: "digital_factory"},
	{Group: "B2B Activations", Role: "boa_activations"},
	{Group: "RoamingTeam", Role: "roaming_team"},
}

func TestRoles_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"table order wins over membership order", []string{"RoamingTeam", "CRM IT Team"}, "crm_it_team"},
		{"first row", []string{"Everyone", "ADM Support 1515 Group", "B2B Activations"}, "support1515"},
		{"case-insensitive group names", []string{"roamingteam"}, "roaming_team"},
		{"no mapped group", []string{"Everyone", "VPN Users"}, ""},
		{"no groups", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultRoles.Resolve(tt.groups))
		})
	}
}

func TestCommonNames(t *testing.T) {
	got := CommonNames([]string{
		"CN=CRM IT Team,OU=Groups,DC=corp,DC=local",
		"cn=RoamingTeam,OU=Groups,DC=corp,DC=local",
		"OU=NoCommonName,DC=corp,DC=local",
		"CN=CRM IT Team,OU=Other,DC=corp,DC=local",
	})

	assert.Equal(t, []string{"CRM IT Team", "RoamingTeam"}, got)
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "jdoe", NormalizeUsername("  JDoe "))
}
