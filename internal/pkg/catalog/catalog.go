// Package catalog holds the purchasable report types and their prices.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2/log"
	"gopkg.in/yaml.v3"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

//go:embed products.yaml
var defaultProducts []byte

var ErrUnknownProduct = errors.New("catalog: unknown product")

// Product prices are in minor units of the catalog currency.
type Product struct {
	Type  models.ReportType `yaml:"type"`
	Title string            `yaml:"title"`
	Price int64             `yaml:"price"`
}

type Catalog struct {
	Currency string    `yaml:"currency"`
	Products []Product `yaml:"products"`

	byType map[models.ReportType]Product
}

// Load reads CATALOG_FILE when set, otherwise the built-in catalog.
func Load() (*Catalog, error) {
	if path := env.GetEnv("CATALOG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		log.Infof("[Catalog] Loaded %s", path)
		return Parse(data)
	}
	return Parse(defaultProducts)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultProducts)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Currency == "" {
		return nil, errors.New("catalog: currency is required")
	}
	c.byType = make(map[models.ReportType]Product, len(c.Products))
	for _, p := range c.Products {
		if !p.Type.Purchasable() {
			return nil, fmt.Errorf("catalog: %q is not a purchasable report type", p.Type)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("catalog: %s must have a positive price", p.Type)
		}
		if _, dup := c.byType[p.Type]; dup {
			return nil, fmt.Errorf("catalog: %s listed twice", p.Type)
		}
		c.byType[p.Type] = p
	}
	return &c, nil
}

func (c *Catalog) Lookup(t models.ReportType) (Product, error) {
	p, ok := c.byType[t]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, t)
	}
	return p, nil
}

// FormatPrice renders minor units as "149.00 RUB".
func (c *Catalog) FormatPrice(amount int64) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, c.Currency)
}
