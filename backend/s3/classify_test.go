package s3

import (
	"errors"
	"net/http"
	"testing"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/lakecat/objectio"
)

// responseError builds the wrapped HTTP response error the SDK produces for
// a failed call.
func responseError(status int, header http.Header, cause error) error {
	if header == nil {
		header = http.Header{}
	}
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{
				Response: &http.Response{
					StatusCode: status,
					Header:     header,
				},
			},
			Err: cause,
		},
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify(nil, 0, time.Now()); err != nil {
		t.Errorf("classify(nil) = %v, want nil", err)
	}
}

func TestClassifyThrottleCode(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cause := &smithy.GenericAPIError{Code: "SlowDown", Message: "please slow down"}

	err := classify(cause, 0, now)
	if !objectio.IsThrottled(err) {
		t.Fatalf("classify(SlowDown) = %v, want throttled", err)
	}

	resume, ok := objectio.ResumeTime(err)
	if !ok {
		t.Fatal("ResumeTime ok = false")
	}
	if want := now.Add(10 * time.Second); !resume.Equal(want) {
		t.Errorf("ResumeAt = %v, want %v (fixed fallback)", resume, want)
	}
	if !errors.Is(err, cause) {
		t.Error("original cause not preserved in chain")
	}
}

func TestClassifyThrottleCodes(t *testing.T) {
	now := time.Now()
	for _, code := range []string{"SlowDown", "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestThrottled"} {
		err := classify(&smithy.GenericAPIError{Code: code}, 0, now)
		if !objectio.IsThrottled(err) {
			t.Errorf("classify(%s) = %v, want throttled", code, err)
		}
	}
}

func TestClassifyHTTP429(t *testing.T) {
	now := time.Now()
	err := classify(responseError(http.StatusTooManyRequests, nil, errors.New("too many requests")), 0, now)
	if !objectio.IsThrottled(err) {
		t.Errorf("classify(429) = %v, want throttled", err)
	}
}

func TestClassifyRetryAfterHeader(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	header := http.Header{"Retry-After": []string{"5"}}
	cause := responseError(http.StatusTooManyRequests, header, errors.New("too many requests"))

	// The service hint wins over the configured default.
	err := classify(cause, 30*time.Second, now)
	resume, ok := objectio.ResumeTime(err)
	if !ok {
		t.Fatalf("classify() = %v, want throttled", err)
	}
	if want := now.Add(5 * time.Second); !resume.Equal(want) {
		t.Errorf("ResumeAt = %v, want %v (header hint)", resume, want)
	}
}

func TestClassifyConfiguredRetryAfter(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cause := &smithy.GenericAPIError{Code: "SlowDown"}

	err := classify(cause, 25*time.Second, now)
	resume, ok := objectio.ResumeTime(err)
	if !ok {
		t.Fatalf("classify() = %v, want throttled", err)
	}
	if want := now.Add(25 * time.Second); !resume.Equal(want) {
		t.Errorf("ResumeAt = %v, want %v (configured default)", resume, want)
	}
}

func TestClassifyIgnoresMalformedRetryAfter(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	for _, v := range []string{"soon", "-3", "0", "Wed, 21 Oct 2026 07:28:00 GMT"} {
		header := http.Header{"Retry-After": []string{v}}
		cause := responseError(http.StatusTooManyRequests, header, errors.New("too many requests"))

		err := classify(cause, 0, now)
		resume, ok := objectio.ResumeTime(err)
		if !ok {
			t.Fatalf("classify(Retry-After %q) = %v, want throttled", v, err)
		}
		if want := now.Add(fallbackRetryAfter); !resume.Equal(want) {
			t.Errorf("Retry-After %q: ResumeAt = %v, want fallback %v", v, resume, want)
		}
	}
}

func TestClassifyFatal(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		cause error
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "access denied"}},
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "key does not exist"}},
		{"http 500", responseError(http.StatusInternalServerError, nil, errors.New("internal error"))},
		{"plain error", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.cause, 0, now)
			if !objectio.IsFatal(err) {
				t.Errorf("classify() = %v, want fatal", err)
			}
			if objectio.IsThrottled(err) {
				t.Errorf("classify() = %v, classified throttled", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Error("original cause not preserved in chain")
			}
		})
	}
}
