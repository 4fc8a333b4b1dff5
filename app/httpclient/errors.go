package httpclient

import "fmt"

type ErrorKind string

const (
	// KindTransient covers timeouts, 429 and 5xx responses; retried within a
	// run, eligible again on the next run.
	KindTransient ErrorKind = "transient"
	// KindNotFound is a 404; not retried this run.
	KindNotFound ErrorKind = "not_found"
	// KindPermanent covers other non-retryable 4xx and malformed URLs.
	KindPermanent ErrorKind = "permanent"
	// KindExhausted means the retry budget ran out.
	KindExhausted ErrorKind = "exhausted"
)

type FetchError struct {
	Kind       ErrorKind
	URL        string
	LastStatus int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.LastStatus)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later run.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindExhausted
}
