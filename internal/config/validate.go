package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// CheckConfigValidity reports every problem in v, one per line.
func CheckConfigValidity(v *viper.Viper) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(v.GetString("data_dir")) == "" {
		add("data_dir is required")
	}

	for _, key := range []string{"remote.appview_url", "remote.plc_url"} {
		if s := strings.TrimSpace(v.GetString(key)); s == "" {
			add("%s is required", key)
		} else if !validHTTPURL(s) {
			add("%s has invalid url %q", key, s)
		}
	}
	if s := strings.TrimSpace(v.GetString("remote.pds_url")); s != "" && !validHTTPURL(s) {
		add("remote.pds_url has invalid url %q", s)
	}
	if v.GetDuration("remote.timeout") <= 0 {
		add("remote.timeout must be greater than 0")
	}
	if n := v.GetInt("remote.page_size"); n < 1 || n > 100 {
		add("remote.page_size must be between 1 and 100")
	}
	if strings.TrimSpace(v.GetString("entries.visibility")) == "" {
		add("entries.visibility is required")
	}
	if v.GetInt("sync.refresh_concurrency") < 1 {
		add("sync.refresh_concurrency must be greater than 0")
	}

	if addr := strings.TrimSpace(v.GetString("serve.addr")); addr == "" {
		add("serve.addr is required")
	} else if _, _, err := net.SplitHostPort(addr); err != nil {
		add("serve.addr has invalid address %q", addr)
	}

	switch strings.ToLower(v.GetString("log.level")) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(v.GetString("log.format")) {
	case "text", "json":
	default:
		add("log.format must be text or json")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "\n"))
}

func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
