package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

func TestNormalizeTimestamp_IntegerMilliseconds(t *testing.T) {
	raw := json.RawMessage(`1735689600000`)

	ms, ok := normalizeTimestamp(raw)

	require.True(t, ok)
	assert.Equal(t, int64(1735689600000), ms)
}

func TestNormalizeTimestamp_ISO8601WithZ(t *testing.T) {
	raw := json.RawMessage(`"2026-01-01T00:00:00Z"`)

	ms, ok := normalizeTimestamp(raw)

	require.True(t, ok)
	assert.Equal(t, int64(1767225600000), ms)
}

func TestNormalizeTimestamp_Unparsable(t *testing.T) {
	_, ok := normalizeTimestamp(json.RawMessage(`"not-a-timestamp"`))
	assert.False(t, ok)

	_, ok = normalizeTimestamp(json.RawMessage(`null`))
	assert.False(t, ok)
}

func TestDecodeConnectArgs_DoubleBase64(t *testing.T) {
	inner, _ := json.Marshal(models.ConnectArgs{DstIP: "10.0.0.1", DstPort: 443})
	innerB64 := base64.StdEncoding.EncodeToString(inner)
	outerB64 := base64.StdEncoding.EncodeToString([]byte(innerB64))

	args := decodeConnectArgs(outerB64)

	assert.Equal(t, "10.0.0.1", args.DstIP)
	assert.Equal(t, 443, args.DstPort)
}

func TestDecodeConnectArgs_SingleBase64Fallback(t *testing.T) {
	payload, _ := json.Marshal(models.ConnectArgs{DstIP: "10.0.0.2", DstPort: 22})
	payloadB64 := base64.StdEncoding.EncodeToString(payload)

	args := decodeConnectArgs(payloadB64)

	assert.Equal(t, "10.0.0.2", args.DstIP)
	assert.Equal(t, 22, args.DstPort)
}

func TestDecodeConnectArgs_TotalFailureReturnsEmpty(t *testing.T) {
	args := decodeConnectArgs("not-valid-base64!!!")
	assert.Equal(t, models.ConnectArgs{}, args)

	args = decodeConnectArgs("")
	assert.Equal(t, models.ConnectArgs{}, args)
}
