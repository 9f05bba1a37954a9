// Package subscriptions loads the channel subscription file: which channels
// are followed, how many of their claims to retain, and which are protected
// from eviction entirely.
package subscriptions

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKeep is the per-channel retention count when the file does not
// specify one.
const DefaultKeep = 2

// Subscription is one followed channel.
type Subscription struct {
	// Name is the channel name, full or base form.
	Name string `yaml:"name"`
	// Keep is the number of newest claims to retain on cleanup. Zero means
	// the file-level default.
	Keep int `yaml:"keep,omitempty"`
	// Protect excludes the channel from all eviction.
	Protect bool `yaml:"protect,omitempty"`
}

// File is the subscription file layout.
type File struct {
	DefaultKeep int            `yaml:"default_keep,omitempty"`
	Channels    []Subscription `yaml:"channels"`
}

// Load reads and validates a subscription file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subscriptions %s: %w", path, err)
	}

	if f.DefaultKeep == 0 {
		f.DefaultKeep = DefaultKeep
	}
	if f.DefaultKeep < 0 {
		return nil, fmt.Errorf("subscriptions %s: default_keep must not be negative", path)
	}

	seen := make(map[string]struct{}, len(f.Channels))
	for i := range f.Channels {
		sub := &f.Channels[i]
		sub.Name = strings.TrimSpace(sub.Name)
		if sub.Name == "" {
			return nil, fmt.Errorf("subscriptions %s: channel %d has no name", path, i+1)
		}
		if !strings.HasPrefix(sub.Name, "@") {
			sub.Name = "@" + sub.Name
		}
		if _, dup := seen[sub.Name]; dup {
			return nil, fmt.Errorf("subscriptions %s: duplicate channel %s", path, sub.Name)
		}
		seen[sub.Name] = struct{}{}

		if sub.Keep < 0 {
			return nil, fmt.Errorf("subscriptions %s: %s: keep must not be negative", path, sub.Name)
		}
		if sub.Keep == 0 {
			sub.Keep = f.DefaultKeep
		}
	}
	return &f, nil
}

// Protected returns the channel names marked protect.
func (f *File) Protected() []string {
	var names []string
	for _, sub := range f.Channels {
		if sub.Protect {
			names = append(names, sub.Name)
		}
	}
	return names
}
