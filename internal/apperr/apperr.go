// Package apperr defines the error taxonomy shared by the scrape
// orchestrator, transformer pipeline, crawl coordinator, and HTTP layer
// (spec §7). Errors are plain Go errors tagged with a Kind and a Tier;
// callers type-switch or errors.As against *Error rather than sentinel
// values, matching the teacher's fmt.Errorf("...: %w", err) wrapping style.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is an error taxonomy bucket (§7), not a concrete type name.
type Kind string

const (
	// Validation
	KindInvalidURL         Kind = "InvalidURL"
	KindUnsupportedProtocol Kind = "UnsupportedProtocol"
	KindBlocklistedURL     Kind = "BlocklistedURL"
	KindBadRequest         Kind = "BadRequest"
	KindNotFound           Kind = "NotFound"

	// Auth
	KindMissingCredentials Kind = "MissingCredentials"
	KindInvalidCredentials Kind = "InvalidCredentials"

	// Transport
	KindDNSResolution Kind = "DNSResolution"
	KindSSL           Kind = "SSL"
	KindSiteError     Kind = "SiteError"
	KindEngineError   Kind = "EngineError"

	// Policy
	KindRobotsDisallow Kind = "RobotsDisallow"

	// Feature negotiation (internal to orchestrator, never surfaced)
	KindAddFeature    Kind = "AddFeature"
	KindRemoveFeature Kind = "RemoveFeature"

	// Content
	KindUnsupportedFile    Kind = "UnsupportedFile"
	KindPDFAntibot         Kind = "PDFAntibot"
	KindPDFInsufficientTime Kind = "PDFInsufficientTime"
	KindPDFPrefetchFailed  Kind = "PDFPrefetchFailed"

	// Action
	KindActionError Kind = "ActionError"

	// Extraction
	KindLLMRefusal        Kind = "LLMRefusal"
	KindInvalidSchema     Kind = "InvalidSchema"
	KindCostLimitExceeded Kind = "CostLimitExceeded"

	// Capacity
	KindScrapeTimeout  Kind = "ScrapeTimeout"
	KindJobWaitTimeout Kind = "JobWaitTimeout"
	KindNoEnginesLeft  Kind = "NoEnginesLeft"
	KindEngineSniped   Kind = "EngineSniped"
	KindEngineUnsuccessful Kind = "EngineUnsuccessful"
	KindIndexMiss      Kind = "IndexMiss"

	// Compliance
	KindZDRViolation Kind = "ZDRViolation"
)

// Error wraps an inner cause with a taxonomy Kind and optional structured
// Details, per §7 "User-visible: {success:false, error:<message>, details?}".
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Inner   error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, message string, inner error) *Error {
	return &Error{Kind: kind, Message: message, Inner: inner}
}

// WithDetails attaches structured details and returns e for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// As extracts the *Error from err if it (or something it wraps) is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err's Kind equals k.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// HTTPStatus maps a Kind to the HTTP status code from spec §6/§7.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidURL, KindUnsupportedProtocol, KindBadRequest, KindInvalidSchema, KindZDRViolation:
		return 400
	case KindMissingCredentials, KindInvalidCredentials:
		return 401
	case KindBlocklistedURL:
		return 403
	case KindNotFound:
		return 404
	case KindScrapeTimeout, KindJobWaitTimeout:
		return 408
	default:
		return 500
	}
}

// recoverableEngineKinds absorbed by the orchestrator: try the next engine.
var recoverableEngineKinds = map[Kind]struct{}{
	KindEngineUnsuccessful: {},
	KindEngineError:        {},
	KindIndexMiss:          {},
	KindEngineSniped:       {},
}

// IsEngineRecoverable reports whether err should be absorbed by the
// engine waterfall rather than terminate the scrape (§4.E, §7).
func IsEngineRecoverable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	_, recoverable := recoverableEngineKinds[kind]
	return recoverable
}

// IsFeatureNegotiation reports whether err should restart the orchestrator's
// outer loop rather than propagate (§4.E step 3, §7).
func IsFeatureNegotiation(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindAddFeature || kind == KindRemoveFeature)
}
