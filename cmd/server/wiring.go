package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "folio/internal/admin/handler"
	adminservice "folio/internal/admin/service"
	"folio/internal/challenge"
	"folio/internal/contact/gate"
	contacthandler "folio/internal/contact/handler"
	contactservice "folio/internal/contact/service"
	jwttoken "folio/internal/jwt_token"
	"folio/internal/mail"
	"folio/internal/notify"
	"folio/internal/notify/async"
	"folio/internal/notify/kafka"
	"folio/internal/notify/logsnag"
	"folio/internal/platform/config"
	"folio/internal/platform/metrics"
	"folio/internal/platform/redis"
	rlmetrics "folio/internal/ratelimit/metrics"
	rlmiddleware "folio/internal/ratelimit/middleware"
	rlmodels "folio/internal/ratelimit/models"
	"folio/internal/ratelimit/service/requestlimit"
	"folio/internal/ratelimit/store/bucket"
	dErrors "folio/pkg/domain-errors"
	"folio/pkg/platform/audit"
	"folio/pkg/platform/audit/store/file"
	adminmw "folio/pkg/platform/middleware/admin"
	"folio/pkg/platform/middleware/metadata"
	"folio/pkg/platform/middleware/request"
	"folio/pkg/platform/middleware/requesttime"
)

// application holds the wired router plus the background components main runs
// and tears down. Closers run in reverse order once the server has stopped.
type application struct {
	router  chi.Router
	limiter *requestlimit.Service
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(cfg config.Config, log *slog.Logger, m *metrics.Metrics, reg *prometheus.Registry, redisClient *redis.Client) (*application, error) {
	app := &application{}

	limiter, err := newLimiter(cfg, log, rlmetrics.New(reg), redisClient)
	if err != nil {
		return nil, err
	}
	app.limiter = limiter

	contactPolicy, err := rlmodels.NewPolicy(rlmodels.PolicyContact, cfg.RateLimit.Contact.Requests, cfg.RateLimit.Contact.Window)
	if err != nil {
		return nil, err
	}
	adminPolicy, err := rlmodels.NewPolicy(rlmodels.PolicyAdmin, cfg.RateLimit.Admin.Requests, cfg.RateLimit.Admin.Window)
	if err != nil {
		return nil, err
	}
	uploadPolicy, err := rlmodels.NewPolicy(rlmodels.PolicyUpload, cfg.RateLimit.Upload.Requests, cfg.RateLimit.Upload.Window)
	if err != nil {
		return nil, err
	}

	sinkOpts := []audit.SinkOption{audit.WithLogger(log), audit.WithFailureCounter(m.AuditFailures)}
	contactLog := audit.NewSink(file.New(cfg.Contact.LogPath), sinkOpts...)
	adminLog := audit.NewSink(file.New(cfg.Admin.LogPath), sinkOpts...)

	notifiers, closeNotifiers, err := newNotifiers(cfg.Notify, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeNotifiers)
	notifier := async.New(notifiers,
		async.WithLogger(log),
		async.WithMetrics(m),
		async.WithQueueSize(cfg.Notify.QueueSize),
		async.WithRate(cfg.Notify.RatePerSecond, max(int(cfg.Notify.RatePerSecond), 1)),
		async.WithTimeout(cfg.Notify.Timeout),
	)
	app.closers = append(app.closers, notifier.Close)

	sender, err := newMailDispatcher(cfg, log, m, contactLog, notifier)
	if err != nil {
		return nil, err
	}

	contactGate, err := gate.New(limiter, contactPolicy,
		gate.WithLogger(log),
		gate.WithMetrics(m),
		gate.WithMinDelay(cfg.Contact.MinDelay),
	)
	if err != nil {
		return nil, err
	}
	contactSvc, err := contactservice.New(contactGate, sender, challenge.NewIssuer())
	if err != nil {
		return nil, err
	}

	adminSvc, err := adminservice.New(adminLog, contactLog, cfg.Admin.DocsDir,
		adminservice.WithLogger(log),
		adminservice.WithMetrics(m),
		adminservice.WithMaxUpload(cfg.Admin.MaxUpload),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(request.SecureHeaders)

	r.Get("/healthz", healthHandler(redisClient))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	contacthandler.New(contactSvc, log, cfg.Server.BodyLimit).Register(r)
	adminhandler.New(adminSvc, log, adminGuards(cfg, log, limiter, adminPolicy, uploadPolicy)).Register(r)

	app.router = r
	return app, nil
}

func newLimiter(cfg config.Config, log *slog.Logger, m *rlmetrics.Metrics, redisClient *redis.Client) (*requestlimit.Service, error) {
	opts := []requestlimit.Option{requestlimit.WithLogger(log), requestlimit.WithMetrics(m)}
	if redisClient == nil {
		log.Info("rate limiting in memory")
		return requestlimit.New(bucket.New(), opts...)
	}
	log.Info("rate limiting on redis", "failure_threshold", cfg.RateLimit.FailureThreshold)
	opts = append(opts, requestlimit.WithFallback(cfg.RateLimit.FailureThreshold))
	return requestlimit.New(bucket.NewRedis(redisClient.Client), opts...)
}

func newNotifiers(cfg config.NotifyConfig, log *slog.Logger) ([]notify.Notifier, func(), error) {
	var notifiers []notify.Notifier
	closeFn := func() {}

	if client := logsnag.New(cfg.LogSnagToken,
		logsnag.WithProject(cfg.LogSnagProject),
		logsnag.WithChannel(cfg.LogSnagChannel),
	); client != nil {
		notifiers = append(notifiers, client)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, publisher)
		closeFn = publisher.Close
	}
	if len(notifiers) == 0 {
		log.Info("no notifiers configured")
	}
	return notifiers, closeFn, nil
}

func newMailDispatcher(cfg config.Config, log *slog.Logger, m *metrics.Metrics, sink mail.AuditSink, publisher mail.Publisher) (*mail.Dispatcher, error) {
	plan, err := mail.Plan(cfg.SMTP)
	if err != nil {
		return nil, err
	}

	var transport mail.Transport
	if cfg.SMTP.HasCredentials() {
		smtpTransport, err := mail.NewSMTPTransport(cfg.SMTP.User, cfg.SMTP.Pass,
			mail.WithTLSInsecure(cfg.SMTP.TLSInsecure),
			mail.WithSOCKS5Proxy(cfg.SMTP.SOCKS5Proxy),
		)
		if err != nil {
			return nil, err
		}
		transport = smtpTransport
	} else {
		log.Warn("smtp credentials missing, contact delivery is not configured", "dry_run", cfg.Contact.DryRun)
	}

	attempts := make([]string, 0, len(plan))
	for _, a := range plan {
		attempts = append(attempts, a.Label())
	}
	log.Info("smtp delivery plan", "host", cfg.SMTP.Host, "attempts", attempts)

	return mail.New(transport, plan, cfg.SMTP.User, cfg.Contact.To, sink,
		mail.WithLogger(log),
		mail.WithMetrics(m),
		mail.WithDryRun(cfg.Contact.DryRun),
		mail.WithAttemptTimeout(cfg.SMTP.AttemptTimeout),
		mail.WithPublisher(publisher),
	)
}

// adminGuards builds the admin middlewares. Without a JWT secret and an
// allowlist every admin request is refused with 401.
func adminGuards(cfg config.Config, log *slog.Logger, limiter *requestlimit.Service, adminPolicy, uploadPolicy rlmodels.Policy) adminhandler.Guards {
	rl := rlmiddleware.New(limiter, log)
	guards := adminhandler.Guards{
		LogsLimit:   rl.RateLimit(adminPolicy),
		UploadLimit: rl.RateLimit(uploadPolicy),
	}
	if !cfg.Admin.Enabled() {
		log.Warn("admin surface disabled: ADMIN_JWT_SECRET or ADMIN_EMAILS missing")
		guards.RequireAdmin = adminmw.RequireAdmin(denyAll{}, nil, log)
		return guards
	}
	jwt := jwttoken.NewJWTService(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.JWTAudience)
	guards.RequireAdmin = adminmw.RequireAdmin(jwt, cfg.Admin.Emails, log)
	return guards
}

type denyAll struct{}

func (denyAll) VerifiedEmail(string) (string, error) {
	return "", dErrors.New(dErrors.CodeUnauthorized, "admin access is not configured")
}
