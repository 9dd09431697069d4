package fedridge

import (
	"errors"
	"fmt"
	"os"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/site"
	"github.com/pelletier/go-toml"
)

var (
	ErrNoSites       = errors.New("config lists no sites")
	ErrSiteID        = errors.New("site ID is empty or repeated")
	ErrSiteNotFound  = errors.New("site not found in config")
	ErrAmbiguousData = errors.New("site lists both records and rows")
)

// Config describes a run and the sites taking part in it.
type Config struct {
	Run   RunConfig    `toml:"run"`
	Sites []SiteConfig `toml:"sites"`
}

type RunConfig struct {
	Name              string    `toml:"name"`
	MaxIterations     int       `toml:"max_iterations"`
	GradientTolerance float64   `toml:"gradient_tolerance"`
	Rho               float64   `toml:"rho"`
	Epsilon           float64   `toml:"epsilon"`
	InitialW          []float64 `toml:"initial_w"`
	MaxDeferrals      int       `toml:"max_deferrals"`
}

// SiteConfig holds one site's data, either as records with a feature
// selection or as parsed covariate rows.
type SiteConfig struct {
	ID        string         `toml:"id"`
	Eta       float64        `toml:"eta"`
	Lambda    float64        `toml:"lambda"`
	FitMethod site.FitMethod `toml:"fit_method"`

	Selection []string      `toml:"selection"`
	Fields    []string      `toml:"fields"`
	Records   []site.Record `toml:"records"`

	Rows    [][]float64 `toml:"rows"`
	Y       []float64   `toml:"y"`
	XLabels []string    `toml:"x_labels"`
	YLabel  string      `toml:"y_label"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return ErrNoSites
	}

	seen := make(map[string]struct{}, len(c.Sites))
	for _, s := range c.Sites {
		if _, ok := seen[s.ID]; ok || s.ID == "" {
			return fmt.Errorf("%w: %q", ErrSiteID, s.ID)
		}
		seen[s.ID] = struct{}{}

		if len(s.Records) > 0 && len(s.Rows) > 0 {
			return fmt.Errorf("%w: %q", ErrAmbiguousData, s.ID)
		}
		if err := s.Config().Validate(); err != nil {
			return fmt.Errorf("site %q: %w", s.ID, err)
		}
	}

	return c.Run.Aggregator().Validate()
}

// Site returns the configuration of the site with the given ID.
func (c *Config) Site(id string) (SiteConfig, error) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, nil
		}
	}

	return SiteConfig{}, fmt.Errorf("%w: %q", ErrSiteNotFound, id)
}

// SiteIDs lists the sites in config order.
func (c *Config) SiteIDs() []string {
	ids := make([]string, len(c.Sites))
	for i, s := range c.Sites {
		ids[i] = s.ID
	}

	return ids
}

func (r RunConfig) Aggregator() aggregator.Config {
	return aggregator.Config{
		MaxIterations:     r.MaxIterations,
		GradientTolerance: r.GradientTolerance,
		Rho:               r.Rho,
		Epsilon:           r.Epsilon,
		InitialW:          r.InitialW,
	}
}

func (s SiteConfig) Config() site.Config {
	return site.Config{
		Eta:       s.Eta,
		Lambda:    s.Lambda,
		FitMethod: s.FitMethod,
	}
}

func (s SiteConfig) Source() site.Source {
	if len(s.Records) > 0 || len(s.Selection) > 0 {
		return site.RecordSource{
			Records:   s.Records,
			Selection: s.Selection,
			Fields:    s.Fields,
		}
	}

	return site.MatrixSource{
		Rows:    s.Rows,
		Y:       s.Y,
		XLabels: s.XLabels,
		YLabel:  s.YLabel,
	}
}
