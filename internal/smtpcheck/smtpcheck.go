package smtpcheck

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPortConstant                 = 587
	defaultTimeoutConstant              = 10 * time.Second
	startTLSExtensionConstant           = "STARTTLS"
	authExtensionConstant               = "AUTH"
	missingHostMessageConstant          = "SMTP host is not configured"
	startTLSRequiredMessageConstant     = "SMTP server does not offer STARTTLS"
	authUnsupportedMessageConstant      = "SMTP server does not advertise AUTH"
	dialErrorTemplateConstant           = "unable to connect to %s: %w"
	greetingErrorTemplateConstant       = "unable to read greeting from %s: %w"
	startTLSErrorTemplateConstant       = "STARTTLS negotiation with %s failed: %w"
	authenticationErrorTemplateConstant = "authentication as %s failed: %w"
	quitErrorTemplateConstant           = "unable to close session with %s: %w"
	logMessageVerifyingConstant         = "Verifying SMTP credentials"
	logMessageVerifiedConstant          = "SMTP credentials verified"
	logFieldAddressConstant             = "address"
	logFieldUsernameConstant            = "username"
	logFieldTLSConstant                 = "tls"
	logFieldAuthenticatedConstant       = "authenticated"
)

// ErrHostNotConfigured indicates that Verify received settings without a host.
var ErrHostNotConfigured = errors.New(missingHostMessageConstant)

// ErrStartTLSUnavailable indicates that TLS was required but the server did not offer it.
var ErrStartTLSUnavailable = errors.New(startTLSRequiredMessageConstant)

// ErrAuthenticationUnsupported indicates that credentials were configured but the server offers no AUTH mechanism.
var ErrAuthenticationUnsupported = errors.New(authUnsupportedMessageConstant)

// Settings describes the SMTP endpoint and credentials to verify.
type Settings struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RequireTLS bool          `mapstructure:"require_tls"`
	// SkipVerify accepts any server certificate during STARTTLS.
	SkipVerify bool `mapstructure:"skip_verify"`
}

// DefaultSettings returns the port and timeout used when configuration leaves them blank.
func DefaultSettings() Settings {
	return Settings{Port: defaultPortConstant, Timeout: defaultTimeoutConstant}
}

// Address joins host and port.
func (settings Settings) Address() string {
	port := settings.Port
	if port <= 0 {
		port = defaultPortConstant
	}
	return net.JoinHostPort(strings.TrimSpace(settings.Host), strconv.Itoa(port))
}

func (settings Settings) hasCredentials() bool {
	return len(settings.Username) > 0 || len(settings.Password) > 0
}

// Result summarizes a successful verification.
type Result struct {
	Address       string
	TLS           bool
	Authenticated bool
}

// Checker opens SMTP sessions to verify settings.
type Checker struct {
	logger *zap.Logger
	dialer *net.Dialer
}

// NewChecker constructs a Checker. A nil logger is replaced with a no-op logger.
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{logger: logger, dialer: &net.Dialer{}}
}

// Verify dials the server, upgrades to TLS when offered, authenticates with PLAIN when
// credentials are configured, and closes the session with QUIT.
func (checker *Checker) Verify(executionContext context.Context, settings Settings) (Result, error) {
	host := strings.TrimSpace(settings.Host)
	if len(host) == 0 {
		return Result{}, ErrHostNotConfigured
	}

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutConstant
	}
	verifyContext, cancel := context.WithTimeout(executionContext, timeout)
	defer cancel()

	address := settings.Address()
	checker.logger.Debug(logMessageVerifyingConstant, zap.String(logFieldAddressConstant, address), zap.String(logFieldUsernameConstant, settings.Username))

	connection, dialError := checker.dialer.DialContext(verifyContext, "tcp", address)
	if dialError != nil {
		return Result{}, fmt.Errorf(dialErrorTemplateConstant, address, dialError)
	}
	if deadline, hasDeadline := verifyContext.Deadline(); hasDeadline {
		_ = connection.SetDeadline(deadline)
	}

	client, clientError := smtp.NewClient(connection, host)
	if clientError != nil {
		connection.Close()
		return Result{}, fmt.Errorf(greetingErrorTemplateConstant, address, clientError)
	}
	defer client.Close()

	result := Result{Address: address}

	if offered, _ := client.Extension(startTLSExtensionConstant); offered {
		tlsConfiguration := &tls.Config{ServerName: host, InsecureSkipVerify: settings.SkipVerify}
		if startTLSError := client.StartTLS(tlsConfiguration); startTLSError != nil {
			return Result{}, fmt.Errorf(startTLSErrorTemplateConstant, address, startTLSError)
		}
		result.TLS = true
	} else if settings.RequireTLS {
		return Result{}, ErrStartTLSUnavailable
	}

	if settings.hasCredentials() {
		if offered, _ := client.Extension(authExtensionConstant); !offered {
			return Result{}, ErrAuthenticationUnsupported
		}
		authentication := smtp.PlainAuth("", settings.Username, settings.Password, host)
		if authenticationError := client.Auth(authentication); authenticationError != nil {
			return Result{}, fmt.Errorf(authenticationErrorTemplateConstant, settings.Username, authenticationError)
		}
		result.Authenticated = true
	}

	if quitError := client.Quit(); quitError != nil {
		return Result{}, fmt.Errorf(quitErrorTemplateConstant, address, quitError)
	}

	checker.logger.Info(
		logMessageVerifiedConstant,
		zap.String(logFieldAddressConstant, address),
		zap.Bool(logFieldTLSConstant, result.TLS),
		zap.Bool(logFieldAuthenticatedConstant, result.Authenticated),
	)
	return result, nil
}
