package ir

// Config is the top-level stack declaration.
type Config struct {
	Name      string         `yaml:"name" json:"name" pkl:"name"`
	Backend   *BackendConfig `yaml:"backend,omitempty" json:"backend,omitempty" pkl:"backend"`
	Resources []*Resource    `yaml:"resources" json:"resources" pkl:"resources"`
	Outputs   map[string]any `yaml:"outputs,omitempty" json:"outputs,omitempty" pkl:"outputs"`
}

// BackendConfig selects where state is stored.
type BackendConfig struct {
	Type   string            `yaml:"type" json:"type" pkl:"type"` // "local" or "s3"
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty" pkl:"config"`
}
