package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML config file. Pointer fields distinguish
// an absent key from an explicit zero value.
type fileConfig struct {
	Targets     []string     `yaml:"targets"`
	Command     commandValue `yaml:"command"`
	Exclude     *string      `yaml:"exclude"`
	Debounce    *string      `yaml:"debounce"`
	KillTimeout *string      `yaml:"kill_timeout"`
	OnBusy      *string      `yaml:"on_busy"`
	PTY         *bool        `yaml:"pty"`
	Init        *bool        `yaml:"init"`
	ReloadAddr  *string      `yaml:"reload_addr"`
	LogLevel    *string      `yaml:"log_level"`
}

// commandValue accepts either a YAML list (used verbatim as argv) or a
// single string split with shell-style quoting rules.
type commandValue struct {
	argv []string
}

func (c *commandValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var argv []string
		if err := node.Decode(&argv); err != nil {
			return err
		}
		c.argv = argv
		return nil
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		argv, err := shlex.Split(raw)
		if err != nil {
			return fmt.Errorf("split command %q: %w", raw, err)
		}
		c.argv = argv
		return nil
	default:
		return fmt.Errorf("command must be a string or a list of strings")
	}
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func parseFileDuration(key, raw string) (time.Duration, error) {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config file: invalid %s %q: %w", key, raw, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("config file: invalid %s %q: must be >= 0", key, raw)
	}
	return parsed, nil
}
