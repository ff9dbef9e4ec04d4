package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simrelease/internal/audit"
)

func TestRecord_KeyedBySerial(t *testing.T) {
	rec, err := Record("simrelease.audit", audit.Entry{
		ID: "e1", Action: audit.ActionUAT, Actor: "ops", Serial: "8921303000000000001F", RequestID: "r1", Message: "Already free in UAT",
	})
	require.NoError(t, err)

	assert.Equal(t, "simrelease.audit", rec.Topic)
	assert.Equal(t, []byte("8921303000000000001F"), rec.Key)
	require.Len(t, rec.Headers, 2)
	assert.Equal(t, "UAT", string(rec.Headers[0].Value))

	var decoded audit.Entry
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "Already free in UAT", decoded.Message)
}

func TestRecord_LoginKeyedByActor(t *testing.T) {
	rec, err := Record("t", audit.Entry{Action: audit.ActionLogin, Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ops"), rec.Key)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "t")
	assert.Error(t, err)
	_, err = New([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
