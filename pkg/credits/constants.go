package credits

const (
	operationGetOrCreate        = "get_or_create_balance"
	operationDebit              = "debit"
	operationCredit             = "credit"
	operationVerifyApply        = "verify_and_apply"
	operationStatusOK           = "ok"
	operationStatusError        = "error"
	operationStatusReplay       = "replay"
	defaultFreeGrant      int64 = 10
	defaultUsageListLimit       = 50
	maxUsageListLimit           = 200
)
