// Package api provides the HTTP API of the Reevlo backend
//
//	@title						Reevlo API
//	@version					1.0
//	@description				Creator economy API: coins, memberships and payouts
//
//	@host						localhost:8080
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the JWT token.
//
//	@tag.name					auth
//	@tag.description			Authentication operations
//
//	@tag.name					users
//	@tag.description			User management operations
//
//	@tag.name					wallet
//	@tag.description			Coins, checkout sessions and payouts
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/metrics"
	"github.com/reevlo/reevlo-backend/notifications"
	"github.com/reevlo/reevlo-backend/stripe"
	"github.com/reevlo/reevlo-backend/validator"
	"go.vocdoni.io/dvote/log"
)

const (
	jwtExpiration = 360 * time.Hour // 15 days
	// maxWebhookBodyBytes caps the size of a Stripe webhook delivery.
	maxWebhookBodyBytes = int64(65536)
	// notificationTimeout bounds the delivery of a single notification.
	notificationTimeout = 10 * time.Second
	// verificationCodeLength is the length of the verification codes in bytes
	verificationCodeLength = 3
	// verificationCodeExpiration is how long an emailed code can be used
	verificationCodeExpiration = time.Hour
)

// Config holds the dependencies and settings of the API.
type Config struct {
	Host   string
	Port   int
	Secret string
	DB     db.Database
	Stripe *stripe.Service
	// MailService sends verification codes and receipts to users. Without
	// it new accounts are verified on registration.
	MailService notifications.NotificationService
	// SMSService alerts the operator of new payouts, optional.
	SMSService    notifications.NotificationService
	OperatorPhone string
	WebAppURL     string
	// Debug enables the routes that credit coins without paying.
	Debug bool
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db            db.Database
	auth          *jwtauth.JWTAuth
	host          string
	port          int
	router        *chi.Mux
	server        *http.Server
	stripe        *stripe.Service
	validator     *validator.Validator
	mail          notifications.NotificationService
	sms           notifications.NotificationService
	operatorPhone string
	webAppURL     string
	debug         bool
	// pending tracks notifications still being delivered
	pending sync.WaitGroup
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API config")
	}
	if conf.DB == nil || conf.Stripe == nil {
		return nil, fmt.Errorf("the API needs a database and a stripe service")
	}
	if conf.Secret == "" {
		return nil, fmt.Errorf("missing JWT secret")
	}
	a := &API{
		db:            conf.DB,
		auth:          jwtauth.New("HS256", []byte(conf.Secret), nil),
		host:          conf.Host,
		port:          conf.Port,
		stripe:        conf.Stripe,
		validator:     validator.New(),
		mail:          conf.MailService,
		sms:           conf.SMSService,
		operatorPhone: conf.OperatorPhone,
		webAppURL:     conf.WebAppURL,
		debug:         conf.Debug,
	}
	a.stripe.OnApplied(a.sendPaymentReceipt)
	a.initRouter()
	return a, nil
}

// Router returns the HTTP handler with every route registered.
func (a *API) Router() http.Handler {
	return a.router
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.host, a.port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// Stop shuts the HTTP server down and waits for the pending notifications.
func (a *API) Stop(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warnw("shutdown before every notification was sent")
	}
	return err
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))

	// protected routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))
		// handle valid JWT tokens
		r.Use(a.authenticator)
		// refresh the token
		log.Infow("new route", "method", "POST", "path", authRefresTokenEndpoint)
		r.Post(authRefresTokenEndpoint, a.refreshTokenHandler)
		// get user information
		log.Infow("new route", "method", "GET", "path", usersMeEndpoint)
		r.Get(usersMeEndpoint, a.userInfoHandler)
		// get the wallet balance
		log.Infow("new route", "method", "GET", "path", walletEndpoint)
		r.Get(walletEndpoint, a.walletHandler)
		// list the applied checkout sessions
		log.Infow("new route", "method", "GET", "path", walletPaymentsEndpoint)
		r.Get(walletPaymentsEndpoint, a.walletPaymentsHandler)
		// create a checkout session
		log.Infow("new route", "method", "POST", "path", createCheckoutSessionEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.CheckoutRequest{})).
			Post(createCheckoutSessionEndpoint, a.createCheckoutSessionHandler)
		// get the status of a checkout session
		log.Infow("new route", "method", "GET", "path", checkoutSessionEndpoint)
		r.Get(checkoutSessionEndpoint, a.checkoutSessionHandler)
		// get the billing portal
		log.Infow("new route", "method", "GET", "path", subscriptionsPortalEndpoint)
		r.Get(subscriptionsPortalEndpoint, a.portalSessionHandler)
		// apply missed checkout sessions
		log.Infow("new route", "method", "POST", "path", syncBalanceEndpoint)
		r.Post(syncBalanceEndpoint, a.syncBalanceHandler)
		// request a payout
		log.Infow("new route", "method", "POST", "path", requestPayoutEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.PayoutRequest{})).
			Post(requestPayoutEndpoint, a.requestPayoutHandler)
		// list payouts
		log.Infow("new route", "method", "GET", "path", payoutsEndpoint)
		r.Get(payoutsEndpoint, a.payoutsHandler)
		// get a payout
		log.Infow("new route", "method", "GET", "path", payoutEndpoint)
		r.Get(payoutEndpoint, a.payoutHandler)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		// prometheus metrics
		log.Infow("new route", "method", "GET", "path", metricsEndpoint)
		r.Method(http.MethodGet, metricsEndpoint, metrics.Handler())
		// login
		log.Infow("new route", "method", "POST", "path", authLoginEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.LoginRequest{})).
			Post(authLoginEndpoint, a.authLoginHandler)
		// register user
		log.Infow("new route", "method", "POST", "path", usersEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.RegisterRequest{})).
			Post(usersEndpoint, a.registerHandler)
		// verify user account
		log.Infow("new route", "method", "POST", "path", verifyUserEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.VerifyAccountRequest{})).
			Post(verifyUserEndpoint, a.verifyUserAccountHandler)
		// resend the verification code
		log.Infow("new route", "method", "POST", "path", verifyUserCodeEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.EmailRequest{})).
			Post(verifyUserCodeEndpoint, a.resendVerificationCodeHandler)
		// request a password reset code
		log.Infow("new route", "method", "POST", "path", usersRecoveryPasswordEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.EmailRequest{})).
			Post(usersRecoveryPasswordEndpoint, a.recoverUserPasswordHandler)
		// reset the password
		log.Infow("new route", "method", "POST", "path", usersResetPasswordEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.PasswordResetRequest{})).
			Post(usersResetPasswordEndpoint, a.resetUserPasswordHandler)
		// coin packages
		log.Infow("new route", "method", "GET", "path", coinPackagesEndpoint)
		r.Get(coinPackagesEndpoint, a.coinPackagesHandler)
		// membership plans
		log.Infow("new route", "method", "GET", "path", membershipPlansEndpoint)
		r.Get(membershipPlansEndpoint, a.membershipPlansHandler)
		// handle stripe webhook
		log.Infow("new route", "method", "POST", "path", stripeWebhookEndpoint)
		r.Post(stripeWebhookEndpoint, a.stripeWebhookHandler)
	})

	if a.debug {
		r.Group(func(r chi.Router) {
			log.Warnw("debug routes enabled", "path", debugAddCoinsEndpoint)
			r.With(a.validator.ValidateMiddleware(apicommon.AddCoinsRequest{})).
				Post(debugAddCoinsEndpoint, a.debugAddCoinsHandler)
		})
	}
	a.router = r
}
