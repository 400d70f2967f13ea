package economy

const (
	operationConvert         = "convert"
	operationBuyShares       = "buy_shares"
	operationFundProject     = "fund_project"
	operationStake           = "stake"
	operationStakePayout     = "stake_payout"
	operationWithdraw        = "withdraw"
	operationDeposit         = "deposit"
	operationAdminRefill     = "admin_refill"
	operationReverseEntry    = "reverse_entry"
	operationApplyToDrop     = "apply_to_drop"
	operationReviewDrop      = "review_drop_application"
	operationEnsureUser      = "ensure_user"
	operationStatusOK        = "ok"
	operationStatusError     = "error"
	idempotencyKeyDelimiter  = ":"
	idempotencySuffixSeller  = "seller"
	idempotencyPrefixPayment = "payment"
	idempotencyPrefixReverse = "reversal"
	idempotencyPrefixStake   = "stake"
	idempotencyPrefixDrop    = "drop"

	secondsPerDay        int64 = 24 * 60 * 60
	defaultEntriesLimit        = 20
	maxEntriesLimit            = 100
	providerStripe             = "stripe"
	providerManual             = "manual"
)
