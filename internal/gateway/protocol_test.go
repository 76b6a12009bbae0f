package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-2", "chat.send", map[string]string{"message": "vpn down"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-2", frame.ID)
	assert.Equal(t, "chat.send", frame.Method)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(frame.Params, &decoded))
	assert.Equal(t, "vpn down", decoded["message"])
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", map[string]string{"status": "ok"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{
		Code:      "storage_error",
		Message:   "try again",
		Retryable: true,
	})

	assert.Equal(t, FrameTypeResponse, frame.Type)
	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "storage_error", frame.Error.Code)
	assert.True(t, frame.Error.Retryable)
}

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent(EventEscalated, map[string]string{"tenant": "ness_bank"}, 42)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, EventEscalated, frame.Event)
	assert.Equal(t, int64(42), frame.Seq)
}

func TestErrorShapeOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: "bad_request", Message: "missing params"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "details")
	assert.NotContains(t, string(data), "retryable")
}

func TestEventFrameRoundTrip(t *testing.T) {
	frame, err := NewEvent(EventEmailProcessed, map[string]string{"message_id": "<m1@example.com>"}, 7)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"ok"`)
	assert.NotContains(t, string(data), `"id"`)

	var back Frame
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, FrameTypeEvent, back.Type)
	assert.Equal(t, int64(7), back.Seq)
	assert.JSONEq(t, `{"message_id":"<m1@example.com>"}`, string(back.Payload))
}

func TestConnectParamsCompanyID(t *testing.T) {
	var p ConnectParams
	require.NoError(t, json.Unmarshal([]byte(`{"minProtocol":1,"maxProtocol":1,"client":{"id":"web","companyId":"ness_bank"}}`), &p))
	assert.Equal(t, "ness_bank", p.Client.CompanyID)
	assert.Equal(t, 1, p.MaxProtocol)
}
