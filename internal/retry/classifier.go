package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/smithy-go"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// PostgreSQL error classes for transient conditions
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnectionException  = "08"
	pgClassInsufficientResource = "53"
	pgClassOperatorIntervention = "57"

	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
)

// AWS error codes that mean the token service is overloaded or briefly unavailable.
var awsThrottleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	"ServiceUnavailable":                     true,
	"InternalFailure":                        true,
	"InternalError":                          true,
	"IDPCommunicationError":                  true,
}

// ConnectClassifier classifies failures of a whole connection attempt.
type ConnectClassifier struct{}

// NewConnectClassifier creates a new connection attempt classifier.
func NewConnectClassifier() *ConnectClassifier {
	return &ConnectClassifier{}
}

// IsTransient reports whether a new attempt, with a freshly minted token, may succeed.
func (c *ConnectClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, iamconn.ErrCredentialResolution),
		errors.Is(err, iamconn.ErrEncryptionRequired),
		errors.Is(err, iamconn.ErrInvalidConfig),
		errors.Is(err, iamconn.ErrUnsupportedAuthMethod),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, iamconn.ErrTokenIssuance):
		return c.isTransientTokenError(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgError(pgErr)
	}

	return isNetworkError(err) || isConnectionError(err)
}

// isTransientTokenError separates throttling and network trouble from authorization denial.
func (c *ConnectClassifier) isTransientTokenError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return awsThrottleCodes[apiErr.ErrorCode()]
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError
	}

	return isNetworkError(err)
}

func isTransientPgError(pgErr *pgconn.PgError) bool {
	code := pgErr.Code

	switch {
	case strings.HasPrefix(code, pgClassConnectionException),
		strings.HasPrefix(code, pgClassInsufficientResource),
		strings.HasPrefix(code, pgClassOperatorIntervention):
		return true
	}

	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeLockNotAvailable:
		return true
	}

	return false
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH} {
			if errors.Is(opErr.Err, errno) {
				return true
			}
		}
	}

	return false
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"too many connections",
	"server closed the connection",
	"unexpected eof",
}

// isConnectionError matches connection failures that only surface as text.
func isConnectionError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
