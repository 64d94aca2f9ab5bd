package wallet

const (
	operationDeposit        = "deposit"
	operationRegisterMethod = "register_payout_method"
	operationRequest        = "request_withdrawal"
	operationProcess        = "begin_processing"
	operationComplete       = "complete_withdrawal"
	operationCancelOrFail   = "cancel_or_fail"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultWithdrawalListLimit = 50
	maxWithdrawalListLimit     = 200
)
