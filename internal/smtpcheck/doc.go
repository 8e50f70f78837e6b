// Package smtpcheck verifies that configured mail-transport credentials are accepted by the
// SMTP server before the platform relies on them for outbound mail.
package smtpcheck
