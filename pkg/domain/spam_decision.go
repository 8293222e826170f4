package domain

// SpamDecision is the outcome of spam/risk scoring for one registration
// attempt.
type SpamDecision string

const (
	SpamDecisionAllowed   SpamDecision = "allowed"
	SpamDecisionDenied    SpamDecision = "denied"
	SpamDecisionModerated SpamDecision = "moderated"
)
