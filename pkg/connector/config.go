// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration.
type Config struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
	// AdminAPIAddr is the listen address for the admin HTTP API serving
	// /api/status and /metrics. Empty disables the API.
	AdminAPIAddr string `yaml:"admin_api_addr"`

	ChannelTopic      string `yaml:"channel_topic"`
	WelcomeMessage    string `yaml:"welcome_message"`
	ServerDescription string `yaml:"server_description"`

	// DirectNickTemplate renders the IRC nick of a direct message sender.
	DirectNickTemplate string `yaml:"direct_nick_template"`

	SendAttempts   int `yaml:"send_attempts"`
	EventQueueSize int `yaml:"event_queue_size"`

	directNickTemplate *template.Template `yaml:"-"`
}

// DirectNickParams holds the parameters for rendering the direct nick template.
type DirectNickParams struct {
	// KeyPrefix is the first twelve hex characters of the sender's key.
	KeyPrefix string
	// Name is the contact's advertised name, empty when the sender is not
	// in the contact directory.
	Name string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func (c *Config) PostProcess() error {
	var err error
	c.directNickTemplate, err = template.New("direct_nick").Parse(c.DirectNickTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse direct_nick_template: %w", err)
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = defaultEventQueueSize
	}
	return nil
}

// ListenAddr returns the host:port the IRC listener binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "listen_host")
	helper.Copy(up.Int, "listen_port")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Str, "channel_topic")
	helper.Copy(up.Str, "welcome_message")
	helper.Copy(up.Str, "server_description")
	helper.Copy(up.Str, "direct_nick_template")
	helper.Copy(up.Int, "send_attempts")
	helper.Copy(up.Int, "event_queue_size")
}

// ParseConfig merges a user config document over the embedded example
// config. Keys missing from data keep their example values and unknown keys
// are ignored.
func ParseConfig(data []byte) (*Config, error) {
	var baseNode yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &baseNode); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		var cfgNode yaml.Node
		if err := yaml.Unmarshal(data, &cfgNode); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		// A document of only comments has no content to merge.
		if len(cfgNode.Content) > 0 {
			upgradeConfig(up.NewHelper(&baseNode, &cfgNode))
		}
	}

	var cfg Config
	if err := baseNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads and merges the config file at path. An empty path yields
// the example config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return ParseConfig(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// FormatDirectNick renders the nick for a direct message sender. It falls
// back to the key prefix when the template is unset, fails or renders
// empty, and replaces characters that are not valid in a nick.
func (c *Config) FormatDirectNick(params DirectNickParams) string {
	if c.directNickTemplate == nil {
		return params.KeyPrefix
	}
	var buf strings.Builder
	if err := c.directNickTemplate.Execute(&buf, params); err != nil {
		return params.KeyPrefix
	}
	nick := nickReplacer.Replace(strings.TrimSpace(buf.String()))
	if nick == "" || strings.HasPrefix(nick, "#") || strings.HasPrefix(nick, ":") {
		return params.KeyPrefix
	}
	return nick
}

var nickReplacer = strings.NewReplacer(" ", "_", "\t", "_", "\r", "", "\n", "", "\x00", "", "!", "_", "@", "_", ",", "_")
