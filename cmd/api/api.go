package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arabesque/docs" //this is required to generate swagger docs
	"arabesque/internal/checkout"
	"arabesque/internal/evidence"
	"arabesque/internal/identity"
	"arabesque/internal/mailer"
	"arabesque/internal/ratelimiter"
	"arabesque/internal/reconcile"
	"arabesque/internal/refund"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// request counters surfaced at /v1/debug/vars alongside the gauges
// published in main
var (
	checkoutsOpened   = expvar.NewInt("checkouts_opened")
	hostedSessions    = expvar.NewInt("hosted_sessions")
	manualSubmissions = expvar.NewInt("manual_submissions")
	refundsRequested  = expvar.NewInt("refunds_requested")
)

type application struct {
	config      config
	logger      *zap.SugaredLogger
	sessions    *checkout.Sessions
	reconciler  *reconcile.Client
	refunds     *refund.Client
	previews    *evidence.PreviewStore
	mailer      mailer.Client
	verifier    *identity.Verifier
	rateLimiter ratelimiter.Limiter
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	backend     backendConfig
	payment     paymentConfig
	checkout    checkoutConfig
	mail        mailConfig
	auth        authConfig
	rateLimiter ratelimiter.Config
}

type backendConfig struct {
	baseURL string
}

type paymentConfig struct {
	// publishableKey is environment specific (test vs. live); it is not a
	// secret but must never be shared across environments.
	publishableKey string
	successURL     string
	cancelURL      string
}

type checkoutConfig struct {
	sessionTTL time.Duration
	idSalt     string
}

type mailConfig struct {
	fromEmail string
	mailtrap  mailTrapConfig
}

type mailTrapConfig struct {
	apiKey string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", app.openCheckoutHandler)

			r.Route("/{checkoutID}", func(r chi.Router) {
				r.Get("/", app.getCheckoutHandler)
				r.Delete("/", app.abandonCheckoutHandler)
				r.Put("/quantity", app.setQuantityHandler)
				r.Post("/advance", app.advanceCheckoutHandler)
				r.Post("/back", app.backCheckoutHandler)
				r.Post("/rail", app.chooseRailHandler)
				r.Post("/submit", app.submitEvidenceHandler)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/return/success", app.paymentSuccessReturnHandler)
			r.Get("/return/cancel", app.paymentCancelReturnHandler)
			r.Get("/{referenceToken}/status", app.paymentStatusHandler)
		})

		r.Post("/refunds", app.createRefundHandler)
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
