package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

// instanceSpec is the YAML document lifecycle subcommands operate on. It
// bundles everything the compute manager would pass on a call: the instance,
// its image metadata and its network interfaces.
type instanceSpec struct {
	Instance *virt.Instance   `yaml:"instance"`
	Image    *virt.ImageMeta  `yaml:"image,omitempty"`
	Network  virt.NetworkInfo `yaml:"network,omitempty"`
}

func loadInstanceSpec(path string) (*instanceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance file '%s': %w", path, err)
	}
	spec := &instanceSpec{}
	if err = yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("parse instance file '%s': %s", path, yaml.FormatError(err, true, true))
	}
	if spec.Instance == nil || spec.Instance.Name == "" {
		return nil, fmt.Errorf("instance file '%s' does not name an instance", path)
	}
	return spec, nil
}
