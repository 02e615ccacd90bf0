package classification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidPayload(t *testing.T) {
	raw := []byte(`{
		"notification_id": "LEXNET-20240520-0001",
		"court": "Juzgado de Primera Instancia n5 de Madrid",
		"procedure_number": "1234/2024",
		"procedure_type": "Ordinario",
		"act_type": "CITACION",
		"scope": "madrid",
		"received_at": "2024-05-20T09:30:00Z",
		"hearing": "2025-03-10T10:00:00Z",
		"parties": [{"name": "Acme SL", "role": "demandante"}],
		"deadlines": [{"day_count": 20, "day_kind": "BUSINESS", "description": "contestar demanda"}],
		"contact": {"name": "Letrado Garcia", "email": "garcia@despacho.es"}
	}`)

	res, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ActCitation, res.ActType)
	assert.True(t, res.ActType.IsCitation())
	require.NotNil(t, res.Hearing)
	assert.Equal(t, time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC), res.Hearing.UTC())
	require.Len(t, res.Deadlines, 1)
	assert.Equal(t, 20, res.Deadlines[0].DayCount)
	require.NotNil(t, res.Contact)
	assert.Nil(t, res.SuggestedCaseID)
}

func TestDecode_RejectsMissingRequiredFields(t *testing.T) {
	raw := []byte(`{"court": "Juzgado", "act_type": "CITACION"}`)
	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_RejectsBadDeadlineFact(t *testing.T) {
	raw := []byte(`{
		"notification_id": "N-1",
		"court": "Juzgado",
		"procedure_number": "1/2024",
		"act_type": "PROVIDENCIA",
		"received_at": "2024-05-20T09:30:00Z",
		"deadlines": [{"day_count": 0, "day_kind": "LUNAR", "description": ""}]
	}`)
	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestActType_Predicates(t *testing.T) {
	assert.True(t, ActCitation.IsHearingAct())
	assert.True(t, ActSummons.IsCitation())
	assert.True(t, ActHearing.IsHearingAct())
	assert.False(t, ActHearing.IsCitation())
	assert.False(t, ActRuling.IsHearingAct())
	assert.False(t, ActJudgment.IsCitation())
}
