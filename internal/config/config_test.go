package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigValidityValid(t *testing.T) {
	v := viper.New()
	applyDefaults(v)
	v.Set("data_dir", "/tmp/whtreader")

	require.NoError(t, CheckConfigValidity(v))
}

func TestCheckConfigValidityInvalid(t *testing.T) {
	v := viper.New()
	v.Set("data_dir", "")
	v.Set("remote.appview_url", "not a url")
	v.Set("remote.plc_url", "")
	v.Set("remote.pds_url", "ftp://pds.example")
	v.Set("remote.timeout", "0s")
	v.Set("remote.page_size", 500)
	v.Set("entries.visibility", " ")
	v.Set("sync.refresh_concurrency", 0)
	v.Set("serve.addr", "8787")
	v.Set("log.level", "loud")
	v.Set("log.format", "xml")

	err := CheckConfigValidity(v)
	require.Error(t, err)

	msg := err.Error()
	expected := []string{
		"data_dir is required",
		`remote.appview_url has invalid url "not a url"`,
		"remote.plc_url is required",
		"remote.pds_url has invalid url",
		"remote.timeout must be greater than 0",
		"remote.page_size must be between 1 and 100",
		"entries.visibility is required",
		"sync.refresh_concurrency must be greater than 0",
		`serve.addr has invalid address "8787"`,
		"log.level must be one of",
		"log.format must be text or json",
	}
	for _, want := range expected {
		assert.Contains(t, msg, want)
	}
	assert.Len(t, strings.Split(msg, "\n"), len(expected))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	t.Run("defaults without a file", func(t *testing.T) {
		v := viper.New()
		require.NoError(t, Load(context.Background(), v))
		assert.Equal(t, "https://public.api.bsky.app", v.GetString("remote.appview_url"))
		assert.Equal(t, 30*time.Second, v.GetDuration("remote.timeout"))
		assert.Equal(t, filepath.Join(dir, "data", AppName), v.GetString("data_dir"))
		assert.Equal(t, filepath.Join(dir, "data", AppName, "whtreader.db"), ResolveDBPath(v))
	})

	t.Run("file then env", func(t *testing.T) {
		cfgDir := filepath.Join(dir, AppName)
		require.NoError(t, os.MkdirAll(cfgDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(`
[remote]
page_size = 25
timeout = "5s"

[sync]
refresh_partial = true
`), 0o644))
		t.Setenv("WHTREADER_REMOTE_PAGE_SIZE", "50")

		v := viper.New()
		require.NoError(t, Load(context.Background(), v))
		assert.Equal(t, 50, v.GetInt("remote.page_size"))
		assert.Equal(t, 5*time.Second, v.GetDuration("remote.timeout"))
		assert.True(t, v.GetBool("sync.refresh_partial"))
		require.NoError(t, CheckConfigValidity(v))
	})

	t.Run("broken file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte("[remote\npage_size = "), 0o644))
		v := viper.New()
		v.SetConfigFile(path)
		assert.Error(t, Load(context.Background(), v))
	})
}

func TestRenderDefaultTOML(t *testing.T) {
	out := RenderDefaultTOML()
	assert.True(t, strings.HasPrefix(out, "# whtreader configuration (TOML)\n"))
	assert.Contains(t, out, "[remote]\n")
	assert.Contains(t, out, `appview_url = "https://public.api.bsky.app"`)
	assert.Contains(t, out, `timeout = "30s"`)
	assert.Contains(t, out, "page_size = 100")
	assert.Contains(t, out, "[sync]\n")
	assert.Contains(t, out, "refresh_partial = false")

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(out)))
	assert.Equal(t, 8, v.GetInt("sync.refresh_concurrency"))
	assert.Equal(t, 30*time.Second, v.GetDuration("remote.timeout"))
}

func TestUpdateTOML(t *testing.T) {
	existing := "data_dir = \"/srv/wht\"\n\n[remote]\npage_size = 10\nlegacy = true\n"
	out, changed := UpdateTOML(existing)
	require.True(t, changed)
	assert.Contains(t, out, "data_dir = \"/srv/wht\"")
	assert.Contains(t, out, "page_size = 10")
	assert.Contains(t, out, "# OUTDATED: option removed from config schema\n# legacy = true")
	assert.Contains(t, out, "# Added by config update")
	assert.Contains(t, out, "[log]")
	assert.Equal(t, 1, strings.Count(out, "[remote]"), "missing keys join the existing table")

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(out)))
	assert.Equal(t, 10, v.GetInt("remote.page_size"))
	assert.Equal(t, "https://plc.directory", v.GetString("remote.plc_url"))
	assert.Equal(t, "/srv/wht", v.GetString("data_dir"))
	assert.False(t, v.IsSet("remote.legacy"))

	again, changed := UpdateTOML(RenderDefaultTOML())
	assert.False(t, changed)
	assert.Equal(t, RenderDefaultTOML(), again)
}
