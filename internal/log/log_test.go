package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("stalker")
	l.Info().Str(FieldAction, "handshake").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stalker", line[FieldComponent])
	assert.Equal(t, "handshake", line[FieldAction])
	assert.Equal(t, "stalkerkit", line["service"])
}

func TestMaskMAC(t *testing.T) {
	assert.Equal(t, "00:1A:79:XX:XX:XX", MaskMAC("00:1A:79:12:34:56"))
	assert.Equal(t, "short", MaskMAC("short"))
}
