package sitemap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

const (
	CodeTimeout           = "timeout"
	CodeDNSFailure        = "dns_failure"
	CodeConnectionRefused = "connection_refused"
	CodeTLSFailure        = "tls_failure"
	CodeTooManyRedirects  = "too_many_redirects"
	CodeRequestFailed     = "http_request_failed"
)

var errTooManyRedirects = errors.New("stopped after too many redirects")

// ClassifyTransportError maps a failed fetch to a stable error code. The
// message is the error text as reported by the HTTP client.
func ClassifyTransportError(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	message = err.Error()

	var (
		netErr      net.Error
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, errTooManyRedirects):
		return CodeTooManyRedirects, message
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout, message
	case errors.As(err, &dnsErr):
		return CodeDNSFailure, message
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused, message
	case errors.As(err, &certErr),
		errors.As(err, &recordErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return CodeTLSFailure, message
	default:
		return CodeRequestFailed, message
	}
}
