package loginflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/audit"
	apperrors "github.com/mytad/game-auth/pkg/errors"
	"github.com/mytad/game-auth/pkg/user"
)

// LoginFlowStep represents a single step in the login flow
type LoginFlowStep interface {
	// Name returns the unique name of this step
	Name() string

	// Order returns the execution order (lower numbers execute first)
	Order() int

	// Execute performs the step's logic
	Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error)

	// ShouldSkip determines if this step should be skipped based on current context
	ShouldSkip(ctx context.Context, flowContext *FlowContext) bool
}

// FlowContext carries state between login flow steps
type FlowContext struct {
	// Input data
	Request Request

	// Current state
	Result *Result
	// User is set once the submitted username resolves to an account
	User *user.User

	// Step-specific data (can be used by steps to store intermediate results)
	StepData map[string]interface{}

	// Services (injected by the flow executor)
	Services *ServiceDependencies
}

// UserID returns the resolved account id, or nil before lookup
func (fc *FlowContext) UserID() *uuid.UUID {
	if fc.User == nil {
		return nil
	}
	id := fc.User.ID
	return &id
}

// RecordFailure writes the failed attempt row for this request
func (fc *FlowContext) RecordFailure(ctx context.Context, reason string) {
	fc.Services.Attempts.Record(ctx, fc.Request.IPAddress, fc.Request.Username, false, reason)
}

// Fail records the attempt row for this request and ends the flow with err.
// Every terminal branch goes through Fail or Succeed so each request leaves one row.
func (fc *FlowContext) Fail(ctx context.Context, reason string, err error) *StepResult {
	fc.RecordFailure(ctx, reason)
	return &StepResult{Error: err}
}

// Succeed records a successful attempt row
func (fc *FlowContext) Succeed(ctx context.Context) {
	fc.Services.Attempts.Record(ctx, fc.Request.IPAddress, fc.Request.Username, true, "Successful login")
}

// StepResult represents the result of executing a login flow step
type StepResult struct {
	// Continue indicates whether the flow should continue to the next step
	Continue bool

	// EarlyReturn indicates the flow should return immediately with the current result
	EarlyReturn bool

	// Error ends the flow with a client-facing error
	Error error

	// Data can contain step-specific data to be stored in FlowContext.StepData
	Data map[string]interface{}
}

// StepRegistry manages and orders login flow steps
type StepRegistry struct {
	steps []LoginFlowStep
}

// NewStepRegistry creates a new step registry
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{
		steps: make([]LoginFlowStep, 0),
	}
}

// AddStep adds a step to the registry
func (r *StepRegistry) AddStep(step LoginFlowStep) *StepRegistry {
	r.steps = append(r.steps, step)
	return r
}

// GetOrderedSteps returns steps sorted by their order
func (r *StepRegistry) GetOrderedSteps() []LoginFlowStep {
	orderedSteps := make([]LoginFlowStep, len(r.steps))
	copy(orderedSteps, r.steps)

	sort.SliceStable(orderedSteps, func(i, j int) bool {
		return orderedSteps[i].Order() < orderedSteps[j].Order()
	})

	return orderedSteps
}

// FlowExecutor orchestrates the execution of login flow steps
type FlowExecutor struct {
	registry *StepRegistry
	services *ServiceDependencies
}

// NewFlowExecutor creates a new flow executor
func NewFlowExecutor(registry *StepRegistry, services *ServiceDependencies) *FlowExecutor {
	return &FlowExecutor{
		registry: registry,
		services: services,
	}
}

// Steps returns the step names in execution order
func (e *FlowExecutor) Steps() []string {
	var names []string
	for _, step := range e.registry.GetOrderedSteps() {
		names = append(names, step.Name())
	}
	return names
}

// Execute runs the steps in order. A step error that is not already a structured
// error is logged and returned as an opaque internal error.
func (e *FlowExecutor) Execute(ctx context.Context, request Request) (Result, error) {
	flowContext := &FlowContext{
		Request:  request,
		Result:   &Result{},
		StepData: make(map[string]interface{}),
		Services: e.services,
	}

	for _, step := range e.registry.GetOrderedSteps() {
		if step.ShouldSkip(ctx, flowContext) {
			continue
		}

		stepResult, err := step.Execute(ctx, flowContext)
		if err != nil {
			slog.Error("Login flow step failed", "step", step.Name(), "err", err)
			e.services.Audit.Log(ctx, flowContext.UserID(), audit.ActionLoginError, fmt.Sprintf("Login error in %s", step.Name()))
			flowContext.RecordFailure(ctx, "Internal error")
			return *flowContext.Result, apperrors.InternalWrap(err, "Login failed")
		}

		if stepResult.Error != nil {
			return *flowContext.Result, stepResult.Error
		}

		for key, value := range stepResult.Data {
			flowContext.StepData[key] = value
		}

		if stepResult.EarlyReturn {
			return *flowContext.Result, nil
		}

		if !stepResult.Continue {
			break
		}
	}

	return *flowContext.Result, nil
}

// FlowBuilder provides a fluent interface for building login flows
type FlowBuilder struct {
	registry *StepRegistry
}

// NewFlowBuilder creates a new flow builder
func NewFlowBuilder() *FlowBuilder {
	return &FlowBuilder{
		registry: NewStepRegistry(),
	}
}

// AddStep adds a step to the flow
func (b *FlowBuilder) AddStep(step LoginFlowStep) *FlowBuilder {
	b.registry.AddStep(step)
	return b
}

// Build creates a flow executor with the configured steps
func (b *FlowBuilder) Build(services *ServiceDependencies) *FlowExecutor {
	return NewFlowExecutor(b.registry, services)
}

// Step orders. Checks that mask earlier information run first.
const (
	OrderDeviceBan           = 100
	OrderRateLimit           = 200
	OrderUserLookup          = 300
	OrderChallengeValidation = 300
	OrderAccountStatus       = 400
	OrderLockout             = 500
	OrderPasswordCheck       = 600
	OrderSuccessRecording    = 700
	OrderTwoFARequirement    = 800
	OrderNewIPDetection      = 850
	OrderSessionIssue        = 900
	OrderLoginAlert          = 1000
)
