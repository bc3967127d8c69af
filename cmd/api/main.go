package main

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"arabesque/internal/checkout"
	"arabesque/internal/evidence"
	"arabesque/internal/identity"
	"arabesque/internal/mailer"
	"arabesque/internal/rails"
	"arabesque/internal/ratelimiter"
	"arabesque/internal/reconcile"
	"arabesque/internal/reference"
	"arabesque/internal/refund"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	// Default values
	defaultRequests := 200
	defaultEnabled := false

	// Retrieve request count with error handling
	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	// Retrieve enabled flag with error handling
	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "1.0.0"

//	@title			Arabesque Checkout API
//	@description	Checkout and payment reconciliation service for the Arabesque operations portal.

//	@contact.name	API Support
//	@contact.email	support@arabesque.example

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	sessionTTL := 30 * time.Minute
	if val := os.Getenv("CHECKOUT_SESSION_TTL"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			log.Fatalf("Invalid value for CHECKOUT_SESSION_TTL: %v", err)
		}
		sessionTTL = parsed
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		backend: backendConfig{
			baseURL: os.Getenv("OPS_BACKEND_URL"),
		},
		payment: paymentConfig{
			publishableKey: os.Getenv("PAYMENT_PUBLISHABLE_KEY"),
			successURL:     os.Getenv("PAYMENT_SUCCESS_URL"),
			cancelURL:      os.Getenv("PAYMENT_CANCEL_URL"),
		},
		checkout: checkoutConfig{
			sessionTTL: sessionTTL,
			idSalt:     os.Getenv("CHECKOUT_ID_SALT"),
		},
		mail: mailConfig{
			fromEmail: os.Getenv("SENDER_EMAIL"),
			mailtrap: mailTrapConfig{
				apiKey: os.Getenv("MAILTRAP_API_KEY"),
			},
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				iss:    "Arabesque",
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	backendClient := &http.Client{Timeout: 15 * time.Second}

	// Payment rails against the operations backend
	paymentRails := rails.New(rails.Config{
		BackendURL:     cfg.backend.baseURL,
		PublishableKey: cfg.payment.publishableKey,
		SuccessURL:     cfg.payment.successURL,
		CancelURL:      cfg.payment.cancelURL,
		HTTPClient:     backendClient,
	})

	// Checkout sessions (in-memory only; nothing survives a restart)
	sessions, err := checkout.NewSessions(cfg.checkout.idSalt, cfg.checkout.sessionTTL, reference.NewGenerator(), paymentRails)
	if err != nil {
		logger.Fatal(err)
	}

	// Cloudinary is optional: without it evidence previews are skipped.
	var previews *evidence.PreviewStore
	if cloudinaryURL := os.Getenv("CLOUDINARY_URL"); cloudinaryURL != "" {
		cld, err := cloudinary.NewFromURL(cloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
		previews = evidence.NewPreviewStore(cld, "evidence")
	}

	// client to send receipt mail after submissions
	mailtrap, err := mailer.NewMailTrapClient(cfg.mail.mailtrap.apiKey, cfg.mail.fromEmail)
	if err != nil {
		logger.Fatal(err)
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	app := &application{
		config:      cfg,
		logger:      logger,
		sessions:    sessions,
		reconciler:  reconcile.NewClient(cfg.backend.baseURL, backendClient),
		refunds:     refund.NewClient(cfg.backend.baseURL, backendClient),
		previews:    previews,
		mailer:      mailtrap,
		verifier:    identity.NewVerifier(cfg.auth.token.secret, cfg.auth.token.iss, cfg.auth.token.iss),
		rateLimiter: rateLimiter,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("checkout_sessions", expvar.Func(func() any {
		return sessions.Count()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
