package exitcodes

// Exit codes for secure-shred and secure-shred-audit
// These codes form the operational contract with scripts and operators
const (
	Success         = 0 // Every operand was destroyed
	TargetFailed    = 1 // At least one operand was not fully destroyed
	InvalidConfig   = 2 // Configuration file or flags invalid
	SafetyViolation = 3 // Every failed operand was refused by the safety validator
	RuntimeError    = 4 // Setup failed before any operand was processed
)
