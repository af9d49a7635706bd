package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syndy/cardscan/internal/config"
	"github.com/syndy/cardscan/internal/model"
	"github.com/syndy/cardscan/pkg/scanium"
)

func TestRunScan_MockClient(t *testing.T) {
	cfg = &config.Config{}
	cfg.Poll.IntervalSecs = 1
	cfg.Poll.MaxAttempts = 3

	path := filepath.Join(t.TempDir(), "card.jpg")
	require.NoError(t, os.WriteFile(path, []byte("imagebytes"), 0644))

	sess, err := runScan(context.Background(), scanium.NewMockClient(), nil, path)
	require.NoError(t, err)

	assert.Equal(t, model.StepResult, sess.Step)
	assert.Equal(t, "demo-0001", sess.TransactionID)
	assert.Equal(t, "Jordan Diaz", sess.Contact.Name)
	assert.Equal(t, "Wholesale Trade", sess.Insight.Industry)
	assert.Equal(t, model.ProcessingCompleted, sess.Processing)
}

func TestRunScan_MissingFile(t *testing.T) {
	cfg = &config.Config{}
	cfg.Poll.IntervalSecs = 1
	cfg.Poll.MaxAttempts = 3

	_, err := runScan(context.Background(), scanium.NewMockClient(), nil, filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
}

func TestPrintSession_Formats(t *testing.T) {
	sess := model.NewSession("s1")
	sess.Contact.Name = "Ada"

	var buf bytes.Buffer
	require.NoError(t, printSession(buf.Write, sess, "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "s1", decoded["id"])

	buf.Reset()
	require.NoError(t, printSession(buf.Write, sess, "yaml"))
	assert.Contains(t, buf.String(), "name: Ada")
}
