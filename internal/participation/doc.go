// Package participation tracks a user's status within a multi-participant task.
//
// Status changes follow a fixed transition table:
//
//	pending        --approve-->      accepted
//	pending        --reject-->       rejected
//	accepted       --start-->        in_progress
//	accepted       --request_exit--> exit_requested
//	in_progress    --request_exit--> exit_requested
//	in_progress    --complete-->     completed
//	exit_requested --approve_exit--> exited
//	exit_requested --reject_exit-->  (status before the request)
//
// request_exit additionally fails once the time slot has started. Completing
// is per participant and never changes the parent task. Rule violations are
// returned as *RuleError before any request is sent.
package participation
