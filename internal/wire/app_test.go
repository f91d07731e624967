package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/whtreader/internal/atproto/atprototest"
	"github.com/mithrel/whtreader/pkg/api"
)

func TestBuildApp(t *testing.T) {
	srv := atprototest.NewServer()
	defer srv.Close()
	srv.AddAuthor("did:plc:alice", "alice.test", "Alice", nil)

	v := viper.New()
	v.Set("data_dir", t.TempDir())
	v.Set("remote.appview_url", srv.URL)
	v.Set("remote.plc_url", srv.URL+"/plc")
	v.Set("log.level", "debug")
	v.Set("log.format", "json")

	var logs bytes.Buffer
	app, err := BuildAppWithLog(context.Background(), v, &logs)
	require.NoError(t, err)

	events, cancel := app.Events.Subscribe(4)
	defer cancel()

	author, err := app.Syncer.Onboard(context.Background(), "alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", author.ID)
	assert.Equal(t, api.EventAuthorAdded, (<-events).Type)
	assert.FileExists(t, filepath.Join(v.GetString("data_dir"), "whtreader.db"))

	require.NoError(t, app.Close())

	line, _, _ := bytes.Cut(logs.Bytes(), []byte("\n"))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(line, &rec), "json log lines")
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "warn", "text")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "k=v")

	_, err = NewLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
