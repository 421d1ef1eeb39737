package mail

import (
	"fmt"
	"strconv"
	"strings"

	"folio/internal/platform/config"
)

// Security is how a connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"      // implicit TLS from the first byte
	SecurityStartTLS Security = "starttls" // plaintext upgraded with STARTTLS
	SecurityPlain    Security = "plain"
)

// Attempt is one (host, port, security) combination to deliver through.
type Attempt struct {
	Host     string
	Port     int
	Security Security
}

// Label identifies the attempt in logs, metrics and audit lines.
func (a Attempt) Label() string {
	return fmt.Sprintf("%d:%s", a.Port, a.Security)
}

func (a Attempt) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ParseFallback parses a "port:security" pair such as "587:starttls". The
// security part defaults to starttls.
func ParseFallback(host, raw string) (Attempt, error) {
	portPart, secPart, _ := strings.Cut(strings.TrimSpace(raw), ":")
	port, err := strconv.Atoi(portPart)
	if err != nil || port <= 0 || port > 65535 {
		return Attempt{}, fmt.Errorf("invalid fallback port %q", raw)
	}
	sec := Security(strings.ToLower(strings.TrimSpace(secPart)))
	switch sec {
	case "":
		sec = SecurityStartTLS
	case SecurityTLS, SecurityStartTLS, SecurityPlain:
	default:
		return Attempt{}, fmt.Errorf("invalid fallback security %q", raw)
	}
	return Attempt{Host: host, Port: port, Security: sec}, nil
}

// Plan returns the ordered attempts for cfg: the primary, then one retry per
// fallback pair. Without configured pairs, an implicit port on the default
// host retries once on 587 with STARTTLS.
func Plan(cfg config.SMTPConfig) ([]Attempt, error) {
	primary := Attempt{Host: cfg.Host, Port: cfg.Port, Security: SecurityStartTLS}
	if cfg.Secure {
		primary.Security = SecurityTLS
	}
	plan := []Attempt{primary}

	if len(cfg.Fallbacks) == 0 {
		if !cfg.PortExplicit && cfg.Host == config.DefaultSMTPHost {
			plan = append(plan, Attempt{Host: cfg.Host, Port: 587, Security: SecurityStartTLS})
		}
		return plan, nil
	}

	for _, raw := range cfg.Fallbacks {
		a, err := ParseFallback(cfg.Host, raw)
		if err != nil {
			return nil, err
		}
		plan = append(plan, a)
	}
	return plan, nil
}
