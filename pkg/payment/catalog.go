package payment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

// Catalog is an ordered, validated set of plans. It is immutable after
// construction.
type Catalog struct {
	plans []PlanConfig
	index map[string]int
}

type catalogFile struct {
	Plans []PlanConfig `yaml:"plans"`
}

var planValidator = newPlanValidator()

func newPlanValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, err := currency.ParseISO(fl.Field().String())
		return err == nil
	})
	return v
}

// NewCatalog validates plans and returns them as a catalog.
func NewCatalog(plans ...PlanConfig) (*Catalog, error) {
	c := &Catalog{
		plans: make([]PlanConfig, 0, len(plans)),
		index: make(map[string]int, len(plans)),
	}
	var errs []error
	for _, p := range plans {
		if p.Currency == "" {
			p.Currency = "USD"
		}
		if err := planValidator.Struct(p); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %w", ErrInvalidPlan, p.ID, err))
			continue
		}
		if _, dup := c.index[p.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicatePlan, p.ID))
			continue
		}
		c.index[p.ID] = len(c.plans)
		c.plans = append(c.plans, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// LoadCatalog reads a YAML document with a top-level "plans" list.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	return NewCatalog(f.Plans...)
}

// LoadCatalogFile reads the catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Get returns the plan with the given id.
func (c *Catalog) Get(id string) (PlanConfig, error) {
	i, ok := c.index[id]
	if !ok {
		return PlanConfig{}, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	return c.plans[i], nil
}

// List returns the plans in declaration order.
func (c *Catalog) List() []PlanConfig {
	return slices.Clone(c.plans)
}

// Len returns the number of plans.
func (c *Catalog) Len() int { return len(c.plans) }
