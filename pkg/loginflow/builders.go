package loginflow

// LoginFlowBuilders provides pre-configured flow builders for the login entry points
type LoginFlowBuilders struct {
	services *ServiceDependencies
}

// NewLoginFlowBuilders creates a new instance of LoginFlowBuilders
func NewLoginFlowBuilders(services *ServiceDependencies) *LoginFlowBuilders {
	return &LoginFlowBuilders{
		services: services,
	}
}

// BuildPasswordLoginFlow creates the username/password flow
func (b *LoginFlowBuilders) BuildPasswordLoginFlow() *FlowExecutor {
	return NewFlowBuilder().
		AddStep(NewDeviceBanStep()).
		AddStep(NewRateLimitStep()).
		AddStep(NewUserLookupStep()).
		AddStep(NewAccountStatusStep()).
		AddStep(NewLockoutStep()).
		AddStep(NewPasswordCheckStep()).
		AddStep(NewSuccessRecordingStep()).
		AddStep(NewTwoFARequirementStep()).
		AddStep(NewNewIPDetectionStep()).
		AddStep(NewSessionIssueStep()).
		AddStep(NewLoginAlertStep()).
		Build(b.services)
}

// BuildTwoFactorFlow creates the second step of a login parked by TwoFARequirementStep.
// Wrong codes count against the IP like wrong passwords. The account is checked again
// since it may have been disabled or locked while the challenge was pending.
func (b *LoginFlowBuilders) BuildTwoFactorFlow() *FlowExecutor {
	return NewFlowBuilder().
		AddStep(NewRateLimitStep()).
		AddStep(NewChallengeValidationStep()).
		AddStep(NewAccountStatusStep()).
		AddStep(NewLockoutStep()).
		AddStep(NewNewIPDetectionStep()).
		AddStep(NewSessionIssueStep()).
		AddStep(NewLoginAlertStep()).
		Build(b.services)
}

// BuildCustomFlow creates a custom flow with specified steps
func (b *LoginFlowBuilders) BuildCustomFlow(steps []LoginFlowStep) *FlowExecutor {
	builder := NewFlowBuilder()
	for _, step := range steps {
		builder.AddStep(step)
	}
	return builder.Build(b.services)
}

// FlowType represents different types of login flows
type FlowType string

const (
	FlowTypePasswordLogin FlowType = "password_login"
	FlowTypeTwoFactor     FlowType = "two_factor"
)

// BuildFlowByType creates a flow executor based on the specified flow type
func (b *LoginFlowBuilders) BuildFlowByType(flowType FlowType) *FlowExecutor {
	switch flowType {
	case FlowTypeTwoFactor:
		return b.BuildTwoFactorFlow()
	default:
		return b.BuildPasswordLoginFlow()
	}
}

// GetAvailableFlowTypes returns all available flow types
func (b *LoginFlowBuilders) GetAvailableFlowTypes() []FlowType {
	return []FlowType{
		FlowTypePasswordLogin,
		FlowTypeTwoFactor,
	}
}
