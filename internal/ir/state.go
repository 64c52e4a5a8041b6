package ir

// State is the durable record of what was last applied.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

// ResourceState is the applied snapshot of one resource.
type ResourceState struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs,omitempty"`  // declared attributes
	Outputs      map[string]any `json:"outputs,omitempty"` // provider-assigned (ids, generated values)
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Address returns the unique address of the resource (type.name).
func (r *ResourceState) Address() string {
	return r.Type + "." + r.Name
}

// Resource returns the resource state with the given address, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, res := range s.Resources {
		if res.Address() == addr {
			return res
		}
	}
	return nil
}
