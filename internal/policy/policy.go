// Package policy holds the named, versioned numeric profiles that bound
// automatic plan changes. Profiles come from an embedded YAML file and may be
// overridden per deployment; overrides are re-read only when Refresh is called.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultProfileName is used when callers do not name a profile.
const DefaultProfileName = "default"

var ErrUnknownProfile = errors.New("unknown policy profile")

// SafetyCaps bound what the rewriter lets through and what the validator accepts.
type SafetyCaps struct {
	MaxVolumeIncreasePct float64 `yaml:"max_volume_increase_pct" json:"maxVolumeIncreasePct"`
	MaxVolumeDecreasePct float64 `yaml:"max_volume_decrease_pct" json:"maxVolumeDecreasePct"`
	MaxDurationChangePct float64 `yaml:"max_duration_change_pct" json:"maxDurationChangePct"`
	MinSessionMinutes    int     `yaml:"min_session_minutes" json:"minSessionMinutes"`
	MaxSessionMinutes    int     `yaml:"max_session_minutes" json:"maxSessionMinutes"`
}

// RecoveryCadence drives the deterministic suggester.
type RecoveryCadence struct {
	ReductionPct          float64 `yaml:"reduction_pct" json:"reductionPct"`
	ProgressionPct        float64 `yaml:"progression_pct" json:"progressionPct"`
	DeloadEveryWeeks      int     `yaml:"deload_every_weeks" json:"deloadEveryWeeks"`
	ProtectiveSessionType string  `yaml:"protective_session_type" json:"protectiveSessionType"`
}

// Profile is one resolved policy.
type Profile struct {
	Name        string          `yaml:"name" json:"name"`
	Version     int             `yaml:"version" json:"version"`
	Description string          `yaml:"description" json:"description"`
	Safety      SafetyCaps      `yaml:"safety" json:"safety"`
	Recovery    RecoveryCadence `yaml:"recovery" json:"recovery"`
}

// Validate rejects profiles whose caps cannot be enforced.
func (p Profile) Validate() error {
	s := p.Safety
	switch {
	case s.MaxVolumeIncreasePct < 0 || s.MaxVolumeIncreasePct > 1:
		return fmt.Errorf("profile %s: max_volume_increase_pct must be in [0,1]", p.Name)
	case s.MaxVolumeDecreasePct < 0 || s.MaxVolumeDecreasePct > 0.9:
		return fmt.Errorf("profile %s: max_volume_decrease_pct must be in [0,0.9]", p.Name)
	case s.MaxDurationChangePct <= 0 || s.MaxDurationChangePct > 1:
		return fmt.Errorf("profile %s: max_duration_change_pct must be in (0,1]", p.Name)
	case s.MinSessionMinutes < 0 || s.MinSessionMinutes > s.MaxSessionMinutes:
		return fmt.Errorf("profile %s: session minute band is inverted", p.Name)
	case p.Recovery.ReductionPct < 0 || p.Recovery.ReductionPct > 0.9:
		return fmt.Errorf("profile %s: reduction_pct must be in [0,0.9]", p.Name)
	}
	return nil
}

// Override is a partial profile. Nil fields keep the built-in value.
type Override struct {
	Version              *int     `mapstructure:"version" yaml:"version"`
	MaxVolumeIncreasePct *float64 `mapstructure:"max_volume_increase_pct" yaml:"max_volume_increase_pct"`
	MaxVolumeDecreasePct *float64 `mapstructure:"max_volume_decrease_pct" yaml:"max_volume_decrease_pct"`
	MaxDurationChangePct *float64 `mapstructure:"max_duration_change_pct" yaml:"max_duration_change_pct"`
	MinSessionMinutes    *int     `mapstructure:"min_session_minutes" yaml:"min_session_minutes"`
	MaxSessionMinutes    *int     `mapstructure:"max_session_minutes" yaml:"max_session_minutes"`
	ReductionPct         *float64 `mapstructure:"reduction_pct" yaml:"reduction_pct"`
	ProgressionPct       *float64 `mapstructure:"progression_pct" yaml:"progression_pct"`
}

func (o Override) apply(p Profile) Profile {
	changed := false
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst, changed = *v, true
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst, changed = *v, true
		}
	}
	setF(&p.Safety.MaxVolumeIncreasePct, o.MaxVolumeIncreasePct)
	setF(&p.Safety.MaxVolumeDecreasePct, o.MaxVolumeDecreasePct)
	setF(&p.Safety.MaxDurationChangePct, o.MaxDurationChangePct)
	setI(&p.Safety.MinSessionMinutes, o.MinSessionMinutes)
	setI(&p.Safety.MaxSessionMinutes, o.MaxSessionMinutes)
	setF(&p.Recovery.ReductionPct, o.ReductionPct)
	setF(&p.Recovery.ProgressionPct, o.ProgressionPct)
	switch {
	case o.Version != nil:
		p.Version = *o.Version
	case changed:
		p.Version++
	}
	return p
}

// OverrideSource supplies the current overrides keyed by profile name.
type OverrideSource func(ctx context.Context) (map[string]Override, error)

// StaticOverrides returns a source that always yields m.
func StaticOverrides(m map[string]Override) OverrideSource {
	return func(context.Context) (map[string]Override, error) { return m, nil }
}

// Registry resolves profiles. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	builtin     map[string]Profile
	resolved    map[string]Profile
	source      OverrideSource
	defaultName string
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// NewRegistry parses the built-in profiles and applies the source's overrides once.
func NewRegistry(ctx context.Context, defaultName string, source OverrideSource) (*Registry, error) {
	var file profileFile
	if err := yaml.Unmarshal(builtinProfiles, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded policy profiles: %w", err)
	}
	builtin := make(map[string]Profile, len(file.Profiles))
	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		builtin[p.Name] = p
	}
	if defaultName == "" {
		defaultName = DefaultProfileName
	}
	if _, ok := builtin[defaultName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, defaultName)
	}
	if source == nil {
		source = StaticOverrides(nil)
	}
	r := &Registry{builtin: builtin, resolved: builtin, source: source, defaultName: defaultName}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh re-reads overrides from the source and swaps in the new resolved set.
// On error the previous set stays active.
func (r *Registry) Refresh(ctx context.Context) error {
	overrides, err := r.source(ctx)
	if err != nil {
		return fmt.Errorf("load policy overrides: %w", err)
	}
	resolved := make(map[string]Profile, len(r.builtin))
	for name, p := range r.builtin {
		resolved[name] = p
	}
	for name, o := range overrides {
		base, ok := r.builtin[name]
		if !ok {
			return fmt.Errorf("%w: override for %s", ErrUnknownProfile, name)
		}
		p := o.apply(base)
		if err := p.Validate(); err != nil {
			return err
		}
		resolved[name] = p
	}
	r.mu.Lock()
	r.resolved = resolved
	r.mu.Unlock()
	return nil
}

// Resolve returns the named profile; "" resolves the default.
func (r *Registry) Resolve(name string) (Profile, error) {
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.resolved[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// Default returns the default profile.
func (r *Registry) Default() Profile {
	p, _ := r.Resolve("")
	return p
}

// Names lists the known profile names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resolved))
	for n := range r.resolved {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
