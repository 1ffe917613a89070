package provider

import "fmt"

// Kind classifies what the provider said about one submission.
type Kind int

const (
	// KindAccepted means the provider acknowledged the operation.
	KindAccepted Kind = iota + 1
	// KindDeclined is a terminal business decision; never retried.
	KindDeclined
	// KindTransient covers network errors, timeouts, throttling and 5xx; the same submission may be retried.
	KindTransient
	// KindMalformed means the response could not be interpreted; never retried.
	KindMalformed
	// KindPending means the provider holds the operation but has not settled it yet.
	// It is checked again under the same idempotency key and never recorded as a failure.
	KindPending
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindDeclined:
		return "declined"
	case KindTransient:
		return "transient_failure"
	case KindMalformed:
		return "malformed_response"
	case KindPending:
		return "pending"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the normalised result of a provider call.
type Outcome struct {
	Kind                  Kind
	ProviderTransactionID string
	Code                  string
	Message               string
}

func Accepted(providerTransactionID string) Outcome {
	return Outcome{Kind: KindAccepted, ProviderTransactionID: providerTransactionID}
}

func Declined(code, message string) Outcome {
	if code == "" {
		code = CodeDeclined
	}

	return Outcome{Kind: KindDeclined, Code: code, Message: message}
}

func Transient(code, message string) Outcome {
	return Outcome{Kind: KindTransient, Code: code, Message: message}
}

func Malformed(message string) Outcome {
	return Outcome{Kind: KindMalformed, Code: CodeMalformedResponse, Message: message}
}

// Pending carries the provider's id of an operation that has not settled.
func Pending(providerTransactionID, message string) Outcome {
	return Outcome{Kind: KindPending, ProviderTransactionID: providerTransactionID, Code: CodeProcessing, Message: message}
}

// Retryable reports whether the outcome allows another attempt of the same submission.
func (o Outcome) Retryable() bool { return o.Kind == KindTransient || o.Kind == KindPending }

// Stable codes produced by the gateways themselves rather than relayed from the provider.
const (
	CodeDeclined          = "declined"
	CodeMalformedResponse = "malformed_provider_response"
	CodeNetworkError      = "network_error"
	CodeTimeout           = "provider_timeout"
	CodeUnavailable       = "provider_unavailable"
	CodeRateLimited       = "rate_limited"
	CodeUnsupportedMethod = "unsupported_payment_method"
	CodeProcessing        = "provider_processing"
)
