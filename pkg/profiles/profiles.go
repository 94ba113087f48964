// Package profiles loads named client definitions from YAML or JSON files.
package profiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samvad-hq/restkit/pkg/httpclient"
	"github.com/samvad-hq/restkit/pkg/merge"
)

const (
	keyDefaults = "defaults"
	keyClients  = "clients"
)

// Profile is one named client definition.
type Profile struct {
	ID           string                   `json:"id" yaml:"id"`
	BaseURL      string                   `json:"base_url" yaml:"base_url"`
	TimeoutMs    int                      `json:"timeout_ms" yaml:"timeout_ms"`
	Headers      *merge.Mapping           `json:"headers" yaml:"headers"`
	TokenStorage *httpclient.TokenStorage `json:"token_storage" yaml:"token_storage"`
}

// Registry holds the profiles of one file in file order.
type Registry struct {
	profiles []Profile
	idx      map[string]int
}

// Load reads the registry at path. The extension must be .yaml, .yml or
// .json; an empty extension is accepted.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("profiles file path is empty")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("profiles file format %q not recognized (expected YAML or JSON)", ext)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	return Parse(raw)
}

// Parse builds a registry from a YAML or JSON document. Each entry under
// clients is deep-merged over defaults before it is decoded.
func Parse(data []byte) (*Registry, error) {
	root, err := merge.DecodeMapping(data)
	if err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	var defaults *merge.Mapping
	if v, ok := root.Get(keyDefaults); ok {
		if defaults, err = sectionMapping(v); err != nil {
			return nil, fmt.Errorf("%s: %w", keyDefaults, err)
		}
	}

	raw, _ := root.Get(keyClients)
	clients, ok := raw.(merge.Sequence)
	if !ok || len(clients) == 0 {
		return nil, errors.New("profiles file contains no clients entries")
	}

	reg := &Registry{
		profiles: make([]Profile, 0, len(clients)),
		idx:      make(map[string]int, len(clients)),
	}
	for i, entry := range clients {
		if _, isMap := entry.(*merge.Mapping); !isMap {
			return nil, fmt.Errorf("client[%d]: %w", i, merge.ErrNotMapping)
		}

		var p Profile
		if err := merge.DecodeInto(merge.Merge(defaults, entry), &p); err != nil {
			return nil, fmt.Errorf("client[%d]: %w", i, err)
		}
		p = sanitizeProfile(p)
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("client[%d]: %w", i, err)
		}
		if _, exists := reg.idx[p.ID]; exists {
			return nil, fmt.Errorf("duplicate client id %q", p.ID)
		}
		reg.idx[p.ID] = len(reg.profiles)
		reg.profiles = append(reg.profiles, p)
	}

	return reg, nil
}

func sectionMapping(v merge.Value) (*merge.Mapping, error) {
	switch t := v.(type) {
	case *merge.Mapping:
		return t, nil
	case merge.Leaf:
		if t.IsNull() {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: got %s", merge.ErrNotMapping, v.Kind())
}

func sanitizeProfile(p Profile) Profile {
	p.ID = strings.TrimSpace(p.ID)
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	if p.TimeoutMs < 0 {
		p.TimeoutMs = 0
	}
	if p.Headers == nil {
		p.Headers = merge.NewMapping()
	}
	if p.TokenStorage != nil {
		ts := httpclient.ResolveTokenStorage(p.TokenStorage)
		p.TokenStorage = &ts
	}
	return p
}

func validateProfile(p Profile) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url is required for client %q", p.ID)
	}
	if p.TokenStorage != nil {
		switch p.TokenStorage.StorageType {
		case httpclient.StorageLocal, httpclient.StorageSession:
		default:
			return fmt.Errorf("client %q: %w %q", p.ID, httpclient.ErrUnknownStorageType, p.TokenStorage.StorageType)
		}
	}
	return nil
}

// All returns a copy of the loaded profiles in file order.
func (r *Registry) All() []Profile {
	if r == nil || len(r.profiles) == 0 {
		return nil
	}
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// ByID returns the profile with the given id.
func (r *Registry) ByID(id string) (Profile, bool) {
	id = strings.TrimSpace(id)
	if r == nil || id == "" {
		return Profile{}, false
	}
	i, ok := r.idx[id]
	if !ok {
		return Profile{}, false
	}
	return r.profiles[i], true
}

// Timeout returns the profile timeout, or zero when the client default
// applies.
func (p Profile) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Args converts the profile into client construction arguments.
func (p Profile) Args() httpclient.Args {
	var ts *httpclient.TokenStorage
	if p.TokenStorage != nil {
		copied := *p.TokenStorage
		ts = &copied
	}
	return httpclient.Args{
		BaseURL:      p.BaseURL,
		Headers:      p.Headers.Clone(),
		Timeout:      p.Timeout(),
		TokenStorage: ts,
	}
}
