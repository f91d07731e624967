package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	tomlHeader    = "# whtreader configuration (TOML)"
	outdatedNote  = "# OUTDATED: option removed from config schema"
	addedByUpdate = "# Added by config update"
)

// tomlSection is one TOML table. The root table has an empty name and comes
// first so its keys are not captured by a later header.
type tomlSection struct {
	name string
	opts []ConfigOption // Key is relative to the table
}

func groupOptions(opts []ConfigOption) []tomlSection {
	sections := []tomlSection{{}}
	index := map[string]int{"": 0}
	for _, o := range opts {
		name, leaf, nested := strings.Cut(o.Key, ".")
		if !nested {
			name, leaf = "", o.Key
		}
		i, ok := index[name]
		if !ok {
			i = len(sections)
			index[name] = i
			sections = append(sections, tomlSection{name: name})
		}
		sections[i].opts = append(sections[i].opts, ConfigOption{Key: leaf, Default: o.Default, Comment: o.Comment})
	}
	return sections
}

// RenderDefaultTOML renders a TOML config with defaults from GetConfigOptions.
func RenderDefaultTOML() string {
	lines := []string{tomlHeader}
	for _, sec := range groupOptions(GetConfigOptions()) {
		if len(sec.opts) == 0 {
			continue
		}
		if sec.name != "" {
			lines = append(lines, "["+sec.name+"]")
		}
		for _, o := range sec.opts {
			lines = appendOption(lines, o)
		}
	}
	return strings.Join(lines, "\n")
}

// tomlBlock is the raw text of one table in an existing file.
type tomlBlock struct {
	name  string
	lines []string
}

// UpdateTOML merges missing defaults into an existing TOML document and
// comments out keys the schema no longer knows. Missing keys are added to
// the table they belong to, so no table is ever declared twice. The input is
// returned untouched when nothing needs to change.
func UpdateTOML(existing string) (string, bool) {
	known := make(map[string]bool)
	for _, o := range GetConfigOptions() {
		known[o.Key] = true
	}

	blocks := []*tomlBlock{{}}
	present := make(map[string]bool)
	changed := false
	for _, line := range strings.Split(existing, "\n") {
		if name, ok := tableHeader(line); ok {
			blocks = append(blocks, &tomlBlock{name: name, lines: []string{line}})
			continue
		}
		cur := blocks[len(blocks)-1]
		key, ok := parseTOMLKey(line)
		if !ok {
			cur.lines = append(cur.lines, line)
			continue
		}
		full := qualify(cur.name, key)
		if !known[full] {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			cur.lines = append(cur.lines, indent+outdatedNote, indent+"# "+strings.TrimLeft(line, " \t"))
			changed = true
			continue
		}
		present[full] = true
		cur.lines = append(cur.lines, line)
	}

	byName := make(map[string]*tomlBlock, len(blocks))
	for _, b := range blocks {
		if _, dup := byName[b.name]; !dup {
			byName[b.name] = b
		}
	}
	for _, sec := range groupOptions(GetConfigOptions()) {
		var missing []ConfigOption
		for _, o := range sec.opts {
			if !present[qualify(sec.name, o.Key)] {
				missing = append(missing, o)
			}
		}
		if len(missing) == 0 {
			continue
		}
		changed = true
		b, ok := byName[sec.name]
		if !ok {
			b = &tomlBlock{name: sec.name, lines: []string{"[" + sec.name + "]"}}
			blocks = append(blocks, b)
			byName[sec.name] = b
		}
		b.lines = append(trimTrailingBlank(b.lines), "", addedByUpdate)
		for _, o := range missing {
			b.lines = appendOption(b.lines, o)
		}
	}

	if !changed {
		return existing, false
	}
	var out []string
	for _, b := range blocks {
		out = append(out, b.lines...)
	}
	return strings.Join(out, "\n"), true
}

func tableHeader(line string) (string, bool) {
	trim := strings.TrimSpace(line)
	if !strings.HasPrefix(trim, "[") || strings.HasPrefix(trim, "[[") || !strings.HasSuffix(trim, "]") {
		return "", false
	}
	return strings.TrimSpace(trim[1 : len(trim)-1]), true
}

func qualify(table, key string) string {
	if table == "" {
		return key
	}
	return table + "." + key
}

func parseTOMLKey(line string) (string, bool) {
	trim := strings.TrimSpace(line)
	if trim == "" || strings.HasPrefix(trim, "#") {
		return "", false
	}
	key, _, ok := strings.Cut(trim, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" || strings.ContainsAny(key[:1], `"'[`) {
		return "", false
	}
	return key, true
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// appendOption writes the comment, the assignment and a blank separator.
func appendOption(lines []string, o ConfigOption) []string {
	if o.Comment != "" {
		lines = append(lines, "# "+o.Comment)
	}
	return append(lines, o.Key+" = "+tomlValue(o.Default), "")
}

func tomlValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case time.Duration:
		return strconv.Quote(v.String())
	default:
		return fmt.Sprint(v)
	}
}
