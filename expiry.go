package stored

import "fmt"

// DailyReset is the server wall-clock time daily records expire at.
const DailyReset = "04:00"

// ExpiryPolicy decides whether a record was last written before the most
// recent daily boundary.
type ExpiryPolicy struct {
	Boundary BoundaryResolver
	At       string
}

// newExpiryPolicy builds a policy from record options.
func newExpiryPolicy(cfg recordConfig) ExpiryPolicy {
	return ExpiryPolicy{Boundary: cfg.boundary, At: cfg.expireAt}
}

// Expired logs the record, compares its time attribute with the last
// boundary and logs the outcome.
func (p ExpiryPolicy) Expired(r *Record) (bool, error) {
	if err := r.Show(); err != nil {
		return false, err
	}
	if p.Boundary == nil {
		return false, fmt.Errorf("stored: %s: expiry policy has no boundary resolver", r.key)
	}
	at := p.At
	if at == "" {
		at = DailyReset
	}
	stamped, err := r.Time()
	if err != nil {
		return false, err
	}
	boundary, err := p.Boundary.LastBoundary(at)
	if err != nil {
		return false, fmt.Errorf("stored: %s: resolve boundary %q: %w", r.key, at, err)
	}
	expired := stamped.Before(boundary)
	r.logger().Attr(r.name+" expired", expired)
	return expired, nil
}
