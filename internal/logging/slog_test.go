package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DevWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := New("dev", &buf)

	log.Debug(context.Background(), "dbg", "a", 1)
	log.Warn(context.Background(), "wrn", "b", 2)

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "msg=dbg")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "b=2")
}

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("prod", &buf)

	log.Debug(context.Background(), "hidden")
	log.With("req_id", "123").Error(context.Background(), "boom", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug must be filtered in production")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["msg"])
	assert.Equal(t, "123", rec["req_id"])
	assert.Equal(t, "v", rec["k"])
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	log := Discard()
	log.Info(context.TODO(), "ok")
	log.With("a", 1).Warn(context.TODO(), "ok")
}
