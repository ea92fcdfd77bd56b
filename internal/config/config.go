// Package config loads the service configuration, including the entitlement
// rule table. Loaded once at startup; read-only afterwards.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`

	Upstream Upstream `yaml:"upstream"`
	Museum   Museum   `yaml:"museum"`
	Firehose Firehose `yaml:"firehose"`

	// ItemRoles maps an item id, or a comma-joined conjunctive list of
	// item ids (no whitespace), to the role granted for owning it/them.
	ItemRoles map[string]string `yaml:"item_roles"`

	// AttributeRoles grant a role when an item of the given id carries the
	// named extra attribute.
	AttributeRoles []AttributeRole `yaml:"attribute_roles"`

	// RankRoles maps upstream player ranks to roles.
	RankRoles map[string]string `yaml:"rank_roles"`

	GuildID         string `yaml:"guild_id"`
	GuildMemberRole string `yaml:"guild_member_role"`
}

type AttributeRole struct {
	ItemID    string `yaml:"item_id"`
	Attribute string `yaml:"attribute"`
	Role      string `yaml:"role"`
}

type Upstream struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type Museum struct {
	// MinExperience gates museum fetches: members at or below this
	// leveling experience are assumed to have nothing donated.
	MinExperience float64 `yaml:"min_experience"`
	Zone          string  `yaml:"zone"`
}

type Firehose struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`
}

func Defaults() Config {
	return Config{
		Listen:  ":8080",
		DataDir: "./data",
		Upstream: Upstream{
			BaseURL: "https://api.hypixel.net/v2",
		},
		Museum: Museum{
			MinExperience: 30,
			Zone:          "museum",
		},
		Firehose: Firehose{
			ClientName: "skyvault",
		},
	}
}

func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if c.Upstream.APIKey == "" {
		c.Upstream.APIKey = os.Getenv("SKYVAULT_API_KEY")
	}
	return c, nil
}
