// Package config loads typed service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	folioStrings "folio/pkg/platform/strings"
)

// DefaultSMTPHost is the provider host the default fallback plan applies to.
const DefaultSMTPHost = "smtp.gmail.com"

// Config is the whole service configuration.
type Config struct {
	Server    Server
	Logging   Logging
	Contact   ContactConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	Admin     AdminConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// BodyLimit caps JSON request bodies.
	BodyLimit int64
}

type Logging struct {
	Level  string
	Format string
}

type ContactConfig struct {
	To       string
	DryRun   bool
	MinDelay time.Duration
	LogPath  string
}

// SMTPConfig describes the primary delivery attempt and its fallback pairs.
type SMTPConfig struct {
	Host string
	Port int
	// PortExplicit is true when SMTP_PORT was set; the default fallback plan
	// only applies to an implicit port on the default host.
	PortExplicit   bool
	Secure         bool
	TLSInsecure    bool
	User           string
	Pass           string
	Fallbacks      []string
	AttemptTimeout time.Duration
	SOCKS5Proxy    string
}

// HasCredentials reports whether both SMTP user and password are set.
func (c SMTPConfig) HasCredentials() bool {
	return c.User != "" && c.Pass != ""
}

type NotifyConfig struct {
	LogSnagToken   string
	LogSnagProject string
	LogSnagChannel string
	KafkaBrokers   []string
	KafkaTopic     string
	QueueSize      int
	RatePerSecond  float64
	Timeout        time.Duration
}

type AdminConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	Emails      []string
	LogPath     string
	DocsDir     string
	MaxUpload   int64
}

// Enabled reports whether the admin surface can authenticate anyone.
func (c AdminConfig) Enabled() bool {
	return c.JWTSecret != "" && len(c.Emails) > 0
}

// RedisConfig holds Redis connection settings. An empty URL keeps rate
// limiting in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Limit is a fixed-window policy.
type Limit struct {
	Requests int
	Window   time.Duration
}

type RateLimitConfig struct {
	Contact          Limit
	Admin            Limit
	Upload           Limit
	SweepInterval    time.Duration
	FailureThreshold int
}

// FromEnv builds a Config from environment variables so main stays lean.
// Parse errors for every malformed variable are joined into one error.
func FromEnv() (Config, error) {
	p := &parser{}

	explicitPort := strings.TrimSpace(os.Getenv("SMTP_PORT")) != ""
	port := p.intVar("SMTP_PORT", 465)
	smtpUser := firstNonEmpty(os.Getenv("GMAIL_USER"), os.Getenv("SMTP_USER"))

	cfg := Config{
		Server: Server{
			Addr:            envOr("FOLIO_ADDR", ":8080"),
			ShutdownTimeout: p.durationVar("SHUTDOWN_TIMEOUT", 10*time.Second),
			BodyLimit:       int64(p.intVar("CONTACT_BODY_LIMIT", 64*1024)),
		},
		Logging: Logging{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Contact: ContactConfig{
			To:       firstNonEmpty(os.Getenv("CONTACT_TO"), smtpUser),
			DryRun:   p.boolVar("CONTACT_DRY_RUN", false),
			MinDelay: p.durationVar("CONTACT_MIN_DELAY", 1500*time.Millisecond),
			LogPath:  envOr("CONTACT_LOG_PATH", "data/contact.log"),
		},
		SMTP: SMTPConfig{
			Host:         envOr("SMTP_HOST", DefaultSMTPHost),
			Port:         port,
			PortExplicit: explicitPort,
			// Implicit TLS by default unless the operator picked a port.
			Secure:         p.boolVar("SMTP_SECURE", !explicitPort),
			TLSInsecure:    p.boolVar("SMTP_TLS_INSECURE", false),
			User:           smtpUser,
			Pass:           firstNonEmpty(os.Getenv("GMAIL_APP_PASSWORD"), os.Getenv("SMTP_PASS")),
			Fallbacks:      folioStrings.SplitList(os.Getenv("SMTP_FALLBACKS")),
			AttemptTimeout: p.durationVar("SMTP_ATTEMPT_TIMEOUT", 10*time.Second),
			SOCKS5Proxy:    os.Getenv("SMTP_SOCKS5_PROXY"),
		},
		Notify: NotifyConfig{
			LogSnagToken:   os.Getenv("LOGSNAG_TOKEN"),
			LogSnagProject: envOr("LOGSNAG_PROJECT", "portfolio"),
			LogSnagChannel: envOr("LOGSNAG_CHANNEL", "contact"),
			KafkaBrokers:   folioStrings.SplitList(os.Getenv("NOTIFY_KAFKA_BROKERS")),
			KafkaTopic:     envOr("NOTIFY_KAFKA_TOPIC", "contact-events"),
			QueueSize:      p.intVar("NOTIFY_QUEUE_SIZE", 64),
			RatePerSecond:  p.floatVar("NOTIFY_RATE_PER_SECOND", 2),
			Timeout:        p.durationVar("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Admin: AdminConfig{
			JWTSecret:   os.Getenv("ADMIN_JWT_SECRET"),
			JWTIssuer:   os.Getenv("ADMIN_JWT_ISSUER"),
			JWTAudience: os.Getenv("ADMIN_JWT_AUDIENCE"),
			Emails:      folioStrings.DedupeAndTrimLower(strings.Split(os.Getenv("ADMIN_EMAILS"), ",")),
			LogPath:     envOr("ADMIN_LOG_PATH", "data/admin-log.jsonl"),
			DocsDir:     envOr("DOCS_DIR", "public/docs"),
			MaxUpload:   int64(p.intVar("ADMIN_MAX_UPLOAD", 10<<20)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.intVar("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.intVar("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.durationVar("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  p.durationVar("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: p.durationVar("REDIS_WRITE_TIMEOUT", time.Second),
		},
		RateLimit: RateLimitConfig{
			Contact: Limit{
				Requests: p.intVar("RATE_LIMIT_CONTACT_REQUESTS", 5),
				Window:   p.durationVar("RATE_LIMIT_CONTACT_WINDOW", 10*time.Minute),
			},
			Admin: Limit{
				Requests: p.intVar("RATE_LIMIT_ADMIN_REQUESTS", 60),
				Window:   p.durationVar("RATE_LIMIT_ADMIN_WINDOW", time.Minute),
			},
			Upload: Limit{
				Requests: p.intVar("RATE_LIMIT_UPLOAD_REQUESTS", 20),
				Window:   p.durationVar("RATE_LIMIT_UPLOAD_WINDOW", time.Minute),
			},
			SweepInterval:    p.durationVar("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			FailureThreshold: p.intVar("RATE_LIMIT_FAILURE_THRESHOLD", 5),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports operator-fixable configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("SMTP_PORT %d out of range", c.SMTP.Port))
	}
	if c.SMTP.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("SMTP_ATTEMPT_TIMEOUT must be positive"))
	}
	if c.Contact.MinDelay < 0 {
		errs = append(errs, errors.New("CONTACT_MIN_DELAY must not be negative"))
	}
	for name, l := range map[string]Limit{"CONTACT": c.RateLimit.Contact, "ADMIN": c.RateLimit.Admin, "UPLOAD": c.RateLimit.Upload} {
		if l.Requests <= 0 || l.Window <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s requests and window must be positive", name))
		}
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_SWEEP_INTERVAL must be positive"))
	}
	if c.RateLimit.FailureThreshold <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_FAILURE_THRESHOLD must be positive"))
	}
	if c.Notify.QueueSize <= 0 {
		errs = append(errs, errors.New("NOTIFY_QUEUE_SIZE must be positive"))
	}
	if c.Server.BodyLimit <= 0 || c.Admin.MaxUpload <= 0 {
		errs = append(errs, errors.New("body limits must be positive"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) intVar(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) floatVar(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// boolVar accepts only "true" as true, matching how the deployment scripts set flags.
func (p *parser) boolVar(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	return raw == "true"
}

// durationVar accepts Go duration strings or a bare number of milliseconds.
func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
