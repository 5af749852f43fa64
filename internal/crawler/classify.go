package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/nao1215/siteaudit/internal/model"
)

// kindError pins the kind of an error that its message alone would not
// reveal.
type kindError struct {
	kind model.ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func withKind(kind model.ErrorKind, err error) error {
	return &kindError{kind: kind, err: err}
}

// substringRules are checked in order against the lowercased message.
var substringRules = []struct {
	kind    model.ErrorKind
	needles []string
}{
	{model.ErrorKindTimeout, []string{"timeout", "exceeded", "err_timed_out"}},
	{model.ErrorKindDNS, []string{"getaddrinfo", "dns", "enotfound", "err_name_not_resolved", "no such host"}},
	{model.ErrorKindSSL, []string{"ssl", "cert", "tls", "err_cert"}},
	{model.ErrorKindConnectionRefused, []string{"econnrefused", "connection refused", "err_connection_refused"}},
	{model.ErrorKindBlocked, []string{"403", "forbidden", "blocked"}},
	{model.ErrorKindAntiBot, []string{"captcha", "cloudflare", "bot"}},
}

// ClassifyError maps a fetch failure to an ErrorKind. Typed errors are
// inspected first; otherwise the lowercased message is matched against
// known substrings.
func ClassifyError(err error) model.ErrorKind {
	if err == nil {
		return model.ErrorKindUnknown
	}

	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return model.ErrorKindTimeout
		}
		return model.ErrorKindDNS
	}
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr) || errors.As(err, &recordErr) {
		return model.ErrorKindSSL
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ErrorKindConnectionRefused
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.kind
			}
		}
	}
	return model.ErrorKindUnknown
}
