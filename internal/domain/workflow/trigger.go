package workflow

// Trigger represents an operator action or collaborator outcome that moves the sub-flow
type Trigger string

const (
	TriggerRequest  Trigger = "REQUEST"
	TriggerWithdraw Trigger = "WITHDRAW"
	TriggerEmit     Trigger = "EMIT"
	TriggerSucceed  Trigger = "SUCCEED"
	TriggerFail     Trigger = "FAIL"
	TriggerRetry    Trigger = "RETRY"
	TriggerSkip     Trigger = "SKIP"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
