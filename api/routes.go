package api

const (
	// ping route

	// GET /ping to check the server is up
	pingEndpoint = "/ping"
	// GET /metrics to scrape the Prometheus collectors
	metricsEndpoint = "/metrics"

	// auth routes

	// POST /auth/refresh to refresh the JWT token
	authRefresTokenEndpoint = "/auth/refresh"
	// POST /auth/login to login and get a JWT token
	authLoginEndpoint = "/auth/login"

	// user routes

	// POST /users to register a new user
	usersEndpoint = "/users"
	// GET /users/me to get the current user information
	usersMeEndpoint = "/users/me"
	// POST /users/verify to verify the user account with the emailed code
	verifyUserEndpoint = "/users/verify"
	// POST /users/verify/code to send a new verification code
	verifyUserCodeEndpoint = "/users/verify/code"
	// POST /users/password/recovery to get a password reset code by email
	usersRecoveryPasswordEndpoint = "/users/password/recovery"
	// POST /users/password/reset to set a new password with the reset code
	usersResetPasswordEndpoint = "/users/password/reset"

	// catalog routes

	// GET /coins/packages to list the coin packages
	coinPackagesEndpoint = "/coins/packages"
	// GET /membership/plans to list the membership plans
	membershipPlansEndpoint = "/membership/plans"

	// wallet routes

	// GET /wallet to get the balance of the current user
	walletEndpoint = "/wallet"
	// GET /wallet/payments to list the applied checkout sessions
	walletPaymentsEndpoint = "/wallet/payments"

	// stripe routes

	// POST /api/webhooks/stripe to receive the Stripe webhook events
	stripeWebhookEndpoint = "/api/webhooks/stripe"
	// POST /api/create-checkout-session to buy coins or a membership
	createCheckoutSessionEndpoint = "/api/create-checkout-session"
	// GET /api/checkout/{sessionID} to get the status of a checkout session
	checkoutSessionEndpoint = "/api/checkout/{sessionID}"
	// GET /subscriptions/portal to get a billing portal URL
	subscriptionsPortalEndpoint = "/subscriptions/portal"
	// POST /api/sync-balance to apply missed checkout sessions
	syncBalanceEndpoint = "/api/sync-balance"

	// payout routes

	// POST /api/request-payout to cash out coins
	requestPayoutEndpoint = "/api/request-payout"
	// GET /payouts to list the payout requests of the current user
	payoutsEndpoint = "/payouts"
	// GET /payouts/{payoutID} to get a payout request of the current user
	payoutEndpoint = "/payouts/{payoutID}"

	// debug routes

	// POST /api/debug/add-coins to credit coins without paying
	debugAddCoinsEndpoint = "/api/debug/add-coins"
)
