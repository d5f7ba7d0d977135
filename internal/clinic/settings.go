// Package clinic holds per-clinic scheduling settings.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

// Settings tune how a clinic's schedule is built and how opened slots are dispatched.
type Settings struct {
	ClinicID             string            `json:"clinic_id"`
	Name                 string            `json:"name,omitempty"`
	DefaultBufferMinutes int               `json:"default_buffer_minutes"`
	DefaultPolicy        scheduling.Policy `json:"default_policy"`
	DispatchLimit        int               `json:"dispatch_limit"`
	UpdatedAt            time.Time         `json:"updated_at,omitempty"`
}

// Defaults are applied to clinics that have no stored settings.
type Defaults struct {
	BufferMinutes int
	DispatchLimit int
}

// DefaultSettings returns the settings a clinic has before anyone edits them.
func DefaultSettings(clinicID string, d Defaults) *Settings {
	limit := d.DispatchLimit
	if limit <= 0 {
		limit = scheduling.DefaultWeightedLimit
	}
	buffer := d.BufferMinutes
	if buffer < 0 {
		buffer = 0
	}
	return &Settings{
		ClinicID:             clinicID,
		DefaultBufferMinutes: buffer,
		DefaultPolicy:        scheduling.PolicyFilter,
		DispatchLimit:        limit,
	}
}

// ErrInvalidSettings is returned when a settings update is out of range.
var ErrInvalidSettings = errors.New("clinic: invalid settings")

// Validate checks ranges and normalizes the policy name.
func (s *Settings) Validate() error {
	if s.DefaultBufferMinutes < 0 {
		return fmt.Errorf("%w: default_buffer_minutes must not be negative", ErrInvalidSettings)
	}
	if s.DispatchLimit <= 0 {
		return fmt.Errorf("%w: dispatch_limit must be positive", ErrInvalidSettings)
	}
	p, err := scheduling.ParsePolicy(string(s.DefaultPolicy))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	s.DefaultPolicy = p
	return nil
}

// Store provides persistence for clinic settings.
type Store struct {
	redis    *redis.Client
	defaults Defaults
	now      func() time.Time
}

// NewStore creates a settings store. Clinics without stored settings read as
// DefaultSettings(clinicID, defaults).
func NewStore(redisClient *redis.Client, defaults Defaults) *Store {
	return &Store{redis: redisClient, defaults: defaults, now: time.Now}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:settings:%s", strings.TrimSpace(clinicID))
}

// Get retrieves clinic settings, returning defaults if not found.
func (s *Store) Get(ctx context.Context, clinicID string) (*Settings, error) {
	if s == nil {
		return DefaultSettings(clinicID, Defaults{}), nil
	}
	if s.redis == nil {
		return DefaultSettings(clinicID, s.defaults), nil
	}
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultSettings(clinicID, s.defaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return &cfg, nil
}

// Set validates and saves clinic settings.
func (s *Store) Set(ctx context.Context, cfg *Settings) error {
	if cfg == nil || strings.TrimSpace(cfg.ClinicID) == "" {
		return fmt.Errorf("%w: clinic_id required", ErrInvalidSettings)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.redis == nil {
		return fmt.Errorf("clinic: settings store has no redis client")
	}
	cfg.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}
