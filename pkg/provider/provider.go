// Package provider defines the contract between the engine and resource
// providers. Providers run in-process; requests and responses carry opaque
// JSON so each provider owns its own attribute schema.
package provider

import (
	"context"

	"github.com/stackdock-io/stackdock/internal/ir"
)

// Interface is implemented by every resource provider.
type Interface interface {
	// Configure prepares the provider (client setup, credential checks).
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)

	// Plan decides what action reconciling desired against prior requires.
	// It must not mutate anything.
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)

	// Apply creates or updates the resource and returns its new outputs.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Read inspects the live resource backing the given state.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)

	// Delete removes the resource. A resource that is already gone is not
	// an error.
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}

type ConfigureRequest struct {
	ConfigJSON []byte
}

type ConfigureResponse struct {
	Diagnostics []Diagnostic
}

type Diagnostic struct {
	Severity DiagnosticSeverity
	Summary  string
	Detail   string
}

type DiagnosticSeverity int

const (
	DiagnosticWarning DiagnosticSeverity = iota
	DiagnosticError
)

type PlanRequest struct {
	Type string
	Name string

	// DesiredJSON is the declared attribute map. Nil means the resource is
	// being removed from the declaration set.
	DesiredJSON []byte

	// PriorInputsJSON / PriorOutputsJSON come from the applied state
	// snapshot. Both nil means the resource has never been created.
	PriorInputsJSON  []byte
	PriorOutputsJSON []byte
}

type PlanResponse struct {
	Action ir.Action

	// ChangedAttributes names the attributes whose values differ.
	ChangedAttributes []string

	// ReplaceAttributes is the subset of changed attributes that forced a
	// replacement.
	ReplaceAttributes []string

	// SensitiveAttributes names attributes whose values must be masked in
	// rendered diffs.
	SensitiveAttributes []string
}

type ApplyRequest struct {
	Type   string
	Name   string
	Action ir.Action

	DesiredJSON      []byte
	PriorOutputsJSON []byte
}

type ApplyResponse struct {
	// OutputsJSON is the full new output set (provider identifiers,
	// generated values) to record in state.
	OutputsJSON []byte
}

type ReadRequest struct {
	Type        string
	Name        string
	OutputsJSON []byte
}

type ReadResponse struct {
	Exists      bool
	OutputsJSON []byte
}

type DeleteRequest struct {
	Type        string
	Name        string
	OutputsJSON []byte
}

type DeleteResponse struct{}
