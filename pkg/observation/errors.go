package observation

import "errors"

// Abstract error kinds shared across store/admission/probe/signer/cache, per
// the error taxonomy in the specification. HTTP handlers map these (via
// errors.Is) onto status codes without needing to know which backend
// produced them.
var (
	// ErrStoreUnavailable signals a transient failure of the persistence
	// layer; callers surface it as 503.
	ErrStoreUnavailable = errors.New("observation store unavailable")

	// ErrUnknownService names the condition of a service the store has
	// no rows for. GetObservations does not return it (an empty result
	// is valid), and no code path in this module returns it.
	ErrUnknownService = errors.New("unknown service")
)
