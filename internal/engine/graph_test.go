package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock-io/stackdock/internal/ir"
)

func TestBuild_NoDependencies(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null"},
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "c", Provider: "null"},
	}

	graph, err := Build(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	assert.Len(t, order, 3)
}

func TestBuild_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "c", Provider: "null", DependsOn: []string{"null_resource.a"}},
	}

	graph, err := Build(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	require.Len(t, order, 3)

	posB := indexOf(order, "null_resource.b")
	posA := indexOf(order, "null_resource.a")
	posC := indexOf(order, "null_resource.c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuild_ImplicitRef(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "docker_container",
			Name:     "web",
			Provider: "docker",
			Properties: map[string]any{
				"networks": []any{"ref://docker_network.app/name"},
			},
		},
		{Type: "docker_network", Name: "app", Provider: "docker"},
	}

	graph, err := Build(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	require.Len(t, order, 2)

	posNet := indexOf(order, "docker_network.app")
	posWeb := indexOf(order, "docker_container.web")

	assert.Less(t, posNet, posWeb, "network should be created before the container")
}

func TestBuild_UnresolvedReference(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "docker_container",
			Name:     "web",
			Provider: "docker",
			Properties: map[string]any{
				"networks": []any{"ref://docker_network.missing/name"},
			},
		},
	}

	_, err := Build(resources)
	require.Error(t, err)

	var ure *UnresolvedReferenceError
	require.ErrorAs(t, err, &ure)
	assert.Equal(t, "docker_container.web", ure.Address)
	assert.Equal(t, "docker_network.missing", ure.Reference)
}

func TestBuild_UnresolvedDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.ghost"}},
	}

	_, err := Build(resources)
	var ure *UnresolvedReferenceError
	require.ErrorAs(t, err, &ure)
	assert.Equal(t, "null_resource.ghost", ure.Reference)
}

func TestBuild_CycleDetection(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null", DependsOn: []string{"null_resource.c"}},
		{Type: "null_resource", Name: "c", Provider: "null", DependsOn: []string{"null_resource.a"}},
	}

	_, err := Build(resources)
	require.Error(t, err)

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []string{"null_resource.a", "null_resource.b", "null_resource.c"}, ce.Members)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuild_DeclarationOrderTieBreak(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "z", Provider: "null"},
		{Type: "null_resource", Name: "a", Provider: "null"},
		{Type: "null_resource", Name: "m", Provider: "null"},
	}

	// Independent resources keep their declaration order, every time.
	for i := 0; i < 10; i++ {
		graph, err := Build(resources)
		require.NoError(t, err)
		assert.Equal(t, []string{"null_resource.z", "null_resource.a", "null_resource.m"}, graph.CreationOrder())
	}
}

func TestBuild_TieBreakWithEdges(t *testing.T) {
	// d depends on b; the rest are independent. Unblocked nodes must slot
	// into declaration order, not completion order.
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "d", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "a", Provider: "null"},
	}

	graph, err := Build(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"null_resource.b", "null_resource.d", "null_resource.a"}, graph.CreationOrder())
}

func TestBuild_DestructionOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null"},
	}

	graph, err := Build(resources)
	require.NoError(t, err)

	revOrder := graph.DestructionOrder()
	require.Len(t, revOrder, 2)

	posA := indexOf(revOrder, "null_resource.a")
	posB := indexOf(revOrder, "null_resource.b")

	assert.Less(t, posA, posB, "a should be destroyed before b")
}

func TestBuildFromState_DropsMissingEdges(t *testing.T) {
	resources := []*ir.ResourceState{
		{Type: "docker_container", Name: "web", Provider: "docker", Dependencies: []string{"docker_network.gone"}},
	}

	graph, err := BuildFromState(resources)
	require.NoError(t, err)
	assert.Empty(t, graph.Dependencies("docker_container.web"))
}

func TestDependenciesAndDependents(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b", "null_resource.c"}},
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "c", Provider: "null"},
	}

	graph, err := Build(resources)
	require.NoError(t, err)

	deps := graph.Dependencies("null_resource.a")
	assert.ElementsMatch(t, []string{"null_resource.b", "null_resource.c"}, deps)

	dependents := graph.Dependents("null_resource.b")
	assert.Equal(t, []string{"null_resource.a"}, dependents)
}

func TestExtractRefs(t *testing.T) {
	props := map[string]any{
		"network": "ref://docker_network.app/name",
		"name":    "web",
		"env": map[string]any{
			"DB_PASS": "ref://random_password.db/value",
		},
		"list": []any{
			"ref://docker_volume.data/name",
			"plain-string",
		},
	}

	refs := ExtractRefs(props)
	assert.Len(t, refs, 3)
	assert.Contains(t, refs, "ref://docker_network.app/name")
	assert.Contains(t, refs, "ref://random_password.db/value")
	assert.Contains(t, refs, "ref://docker_volume.data/name")
}

func TestRefAddress(t *testing.T) {
	tests := []struct {
		ref      string
		wantAddr string
		wantAttr string
		wantOK   bool
	}{
		{"ref://docker_network.app/name", "docker_network.app", "name", true},
		{"ref://random_password.db/value", "random_password.db", "value", true},
		{"not-a-ref", "", "", false},
		{"ref://missing-slash", "", "", false},
		{"ref://trailing.slash/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			addr, attr, ok := RefAddress(tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantAttr, attr)
		})
	}
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
