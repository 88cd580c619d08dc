package s3

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"

	"github.com/lakecat/objectio"
)

// fallbackRetryAfter is the resume-after duration used when neither the
// service nor the configuration supplies one.
const fallbackRetryAfter = 10 * time.Second

// throttleCodes is the SDK's own set of throttling error codes ("SlowDown",
// "Throttling", "TooManyRequestsException", ...). Reusing it keeps the
// classification structural — no message-text matching.
var throttleCodes = retry.ThrottleErrorCode{Codes: retry.DefaultThrottleErrorCodes}

// classify is the single chokepoint turning a failed remote call into the
// taxonomy callers depend on: a *objectio.ThrottledError when the service
// signaled rate-limiting, a *objectio.FatalError for everything else.
//
// The resume-after timestamp is now plus, in order of preference: the
// service-supplied Retry-After hint, the configured default, a fixed
// 10-second fallback.
func classify(err error, retryAfter time.Duration, now time.Time) error {
	if err == nil {
		return nil
	}

	if !isThrottle(err) {
		return &objectio.FatalError{Cause: err}
	}

	delay := fallbackRetryAfter
	if retryAfter > 0 {
		delay = retryAfter
	}
	if hint, ok := serviceRetryAfter(err); ok {
		delay = hint
	}

	return &objectio.ThrottledError{
		ResumeAt: now.Add(delay),
		Message:  "s3 throttled",
		Cause:    err,
	}
}

// isThrottle reports whether the error carries an explicit throttling
// signal: a throttle error code, or an HTTP 429 response.
func isThrottle(err error) bool {
	if throttleCodes.IsErrorThrottle(err) == aws.TrueTernary {
		return true
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusTooManyRequests {
		return true
	}
	return false
}

// serviceRetryAfter extracts the Retry-After header from the failed
// response, when the service sent one. Only the delta-seconds form is
// honored; S3-compatible stores do not send the HTTP-date form.
func serviceRetryAfter(err error) (time.Duration, bool) {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return 0, false
	}

	v := respErr.Response.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, convErr := strconv.Atoi(v)
	if convErr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
