// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aibor/emuctl/internal/emulator"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ParseConfig parses an emulator configuration. The format is chosen by the
// file extension: YAML for ".yaml" and ".yml", JSON with comments for ".json"
// and ".jsonc". Unknown fields are rejected.
func ParseConfig(data []byte, ext string) (emulator.Config, error) {
	var cfg emulator.Config

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		err := decoder.Decode(&cfg)
		if err != nil {
			return emulator.Config{}, fmt.Errorf("yaml: %w", err)
		}
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()

		err := decoder.Decode(&cfg)
		if err != nil {
			return emulator.Config{}, fmt.Errorf("json: %w", err)
		}
	default:
		return emulator.Config{}, fmt.Errorf("%w: %q", ErrUnknownConfigFormat, ext)
	}

	return cfg, nil
}

// ReadConfig reads and parses the configuration file at the given path.
func ReadConfig(path string) (emulator.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return emulator.Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return emulator.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}
