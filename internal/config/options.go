package config

import "time"

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the default configuration options and their meanings.
// This is the single source of truth for default values and generator output.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "data_dir", Default: defaultDataDir(), Comment: "Directory for local state; the cache is data_dir/whtreader.db"},

		{Key: "remote.appview_url", Default: "https://public.api.bsky.app", Comment: "AppView used for profile lookup and handle resolution"},
		{Key: "remote.plc_url", Default: "https://plc.directory", Comment: "did:plc directory used to find an author's PDS"},
		{Key: "remote.pds_url", Default: "", Comment: "Force a PDS for record listing; empty resolves it from each author's DID"},
		{Key: "remote.timeout", Default: 30 * time.Second, Comment: "Timeout for a single remote request"},
		{Key: "remote.page_size", Default: 100, Comment: "Records requested per listRecords page (1-100)"},
		{Key: "remote.user_agent", Default: AppName, Comment: "User-Agent sent with every request"},

		{Key: "render.inline_images", Default: false, Comment: "Embed entry images as data URIs when syncing"},

		{Key: "entries.visibility", Default: "public", Comment: "Visibility shown by default when listing entries"},

		{Key: "sync.refresh_concurrency", Default: 8, Comment: "Profiles fetched in parallel by author refresh"},
		{Key: "sync.refresh_partial", Default: false, Comment: "Keep successful profile refreshes when others fail"},

		{Key: "serve.addr", Default: "127.0.0.1:8787", Comment: "Listen address of the local preview server"},
		{Key: "serve.token", Default: "", Comment: "Bearer token required to trigger syncs over HTTP; empty disables them"},

		{Key: "log.level", Default: "info", Comment: "Log level: debug, info, warn, error"},
		{Key: "log.format", Default: "text", Comment: "Log format: text or json"},
	}
}
