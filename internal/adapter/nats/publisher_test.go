package nats

import (
	"encoding/json"
	"testing"

	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMsg(t *testing.T) {
	event := domain.ChangeEvent{
		Category:  domain.SubjectHerd,
		Kind:      domain.ChangeRapidMovement,
		SubjectID: "E",
		Delta:     14.2,
		Summary:   "Herd Echo moving 14.2 km/day",
	}

	msg, err := buildMsg("bovine.alerts", event)
	require.NoError(t, err)

	assert.Equal(t, "bovine.alerts.herd.rapid-movement", msg.Subject)
	assert.Equal(t, "E", msg.Header.Get("Bovine-Subject-Id"))

	var got domain.ChangeEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, event, got)
}
