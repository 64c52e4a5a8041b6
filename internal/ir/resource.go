package ir

// Resource is a single declared resource.
type Resource struct {
	Type       string         `yaml:"type" json:"type" pkl:"type"` // e.g. "docker_container"
	Name       string         `yaml:"name" json:"name" pkl:"name"`
	Provider   string         `yaml:"provider,omitempty" json:"provider,omitempty" pkl:"provider"`
	Lifecycle  *Lifecycle     `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty" pkl:"lifecycle"`
	DependsOn  []string       `yaml:"depends_on,omitempty" json:"dependsOn,omitempty" pkl:"dependsOn"`
	Count      int            `yaml:"count,omitempty" json:"count,omitempty" pkl:"count"`
	ForEach    map[string]any `yaml:"for_each,omitempty" json:"forEach,omitempty" pkl:"forEach"`
	Timeout    string         `yaml:"timeout,omitempty" json:"timeout,omitempty" pkl:"timeout"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty" pkl:"properties"`
}

// Address returns the unique address of the resource (type.name).
func (r *Resource) Address() string {
	return r.Type + "." + r.Name
}

type Lifecycle struct {
	CreateBeforeDestroy bool     `yaml:"create_before_destroy,omitempty" json:"createBeforeDestroy,omitempty" pkl:"createBeforeDestroy"`
	PreventDestroy      bool     `yaml:"prevent_destroy,omitempty" json:"preventDestroy,omitempty" pkl:"preventDestroy"`
	IgnoreChanges       []string `yaml:"ignore_changes,omitempty" json:"ignoreChanges,omitempty" pkl:"ignoreChanges"`
}
