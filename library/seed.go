package library

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Seed is the built-in reference data.
type Seed struct {
	Advertisers []AdvertiserAgencyPair `yaml:"advertisers"`
	Audiences   []AudienceTarget       `yaml:"audiences"`
}

var (
	seedOnce sync.Once
	seed     Seed
	seedErr  error
)

// Defaults returns the embedded seed. It is parsed once.
func Defaults() (Seed, error) {
	seedOnce.Do(func() {
		seed, seedErr = ParseSeed(defaultsYAML)
	})
	return seed, seedErr
}

// ParseSeed parses a seed document.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse library seed: %w", err)
	}
	return s, nil
}
