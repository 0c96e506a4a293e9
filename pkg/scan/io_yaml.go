package scan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// geometryYAML is the on-disk form of a Geometry.
type geometryYAML struct {
	Order      string      `yaml:"order,omitempty"`
	Dimensions []Dimension `yaml:"dimensions"`
}

// LoadFile reads a scan geometry from a YAML file.
func LoadFile(path string) (*Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan geometry: %w", err)
	}
	var raw geometryYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scan geometry: %w", err)
	}
	order, err := ParseOrder(raw.Order)
	if err != nil {
		return nil, err
	}
	g := &Geometry{Dims: raw.Dimensions, Order: order}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// SaveFile writes a scan geometry to a YAML file.
func (g *Geometry) SaveFile(path string) error {
	raw := geometryYAML{Order: g.Order.String(), Dimensions: g.Dims}
	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("marshal scan geometry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scan geometry: %w", err)
	}
	return nil
}
