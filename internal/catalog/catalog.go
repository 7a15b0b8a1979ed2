// Package catalog loads the badge and volunteer event catalog and seeds it into a store.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tapkind/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

type Badge struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Icon           string `yaml:"icon"`
	PointsRequired int64  `yaml:"points_required"`
}

type Event struct {
	Name            string    `yaml:"name"`
	Organization    string    `yaml:"organization"`
	Location        string    `yaml:"location"`
	StartsAt        time.Time `yaml:"starts_at"`
	DurationMinutes int       `yaml:"duration_minutes"`
	KarmaPoints     int64     `yaml:"karma_points"`
	Description     string    `yaml:"description"`
}

type Catalog struct {
	Badges []Badge `yaml:"badges"`
	Events []Event `yaml:"events"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := map[string]bool{}
	for _, b := range c.Badges {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return errors.New("catalog: badge without a name")
		}
		if seen[name] {
			return fmt.Errorf("catalog: duplicate badge %q", name)
		}
		if b.PointsRequired < 0 {
			return fmt.Errorf("catalog: badge %q has a negative threshold", name)
		}
		seen[name] = true
	}
	seen = map[string]bool{}
	for _, e := range c.Events {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return errors.New("catalog: event without a name")
		}
		if seen[name] {
			return fmt.Errorf("catalog: duplicate event %q", name)
		}
		if e.DurationMinutes <= 0 {
			return fmt.Errorf("catalog: event %q needs a positive duration", name)
		}
		if e.StartsAt.IsZero() {
			return fmt.Errorf("catalog: event %q has no start time", name)
		}
		seen[name] = true
	}
	return nil
}

// Store is what Seed writes to.
type Store interface {
	UpsertBadge(ctx context.Context, b models.Badge) (models.Badge, error)
	UpsertVolunteerEvent(ctx context.Context, e models.VolunteerEvent) (models.VolunteerEvent, error)
}

// Seed upserts every badge and event by name. Running it twice is harmless.
func (c *Catalog) Seed(ctx context.Context, store Store, log *zap.Logger) error {
	for _, b := range c.Badges {
		if _, err := store.UpsertBadge(ctx, models.Badge{
			Name:           strings.TrimSpace(b.Name),
			Description:    b.Description,
			Icon:           b.Icon,
			PointsRequired: b.PointsRequired,
		}); err != nil {
			return fmt.Errorf("seed badge %q: %w", b.Name, err)
		}
	}
	for _, e := range c.Events {
		if _, err := store.UpsertVolunteerEvent(ctx, models.VolunteerEvent{
			Name:            strings.TrimSpace(e.Name),
			Organization:    e.Organization,
			Location:        e.Location,
			StartsAt:        e.StartsAt.UTC(),
			DurationMinutes: e.DurationMinutes,
			KarmaPoints:     e.KarmaPoints,
			Description:     e.Description,
		}); err != nil {
			return fmt.Errorf("seed event %q: %w", e.Name, err)
		}
	}
	log.Info("catalog seeded", zap.Int("badges", len(c.Badges)), zap.Int("events", len(c.Events)))
	return nil
}
