package license

import (
	"time"

	"github.com/dmitrymomot/licensekit/pkg/identity"
)

// Resolver turns stored records into an Entitlement. It is pure apart from
// the clock and safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	now     func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver over catalog. Panics if catalog is nil.
func NewResolver(catalog *Catalog, opts ...ResolverOption) *Resolver {
	if catalog == nil {
		panic("license: catalog is required")
	}
	r := &Resolver{catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the plan table the resolver maps through.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve computes the caller's entitlement from their records.
//
// Admins (by signed claim only) get the annual plan without consulting records.
// Otherwise the latest active record decides; an expired one is invalid even
// if its stored status is still active.
func (r *Resolver) Resolve(id identity.Identity, records []Record) Entitlement {
	if id.Valid() && id.Admin {
		return r.adminEntitlement()
	}

	rec, ok := Authoritative(records)
	if !ok {
		return None()
	}

	ent := Entitlement{
		LicenseType: rec.Type,
		LicenseID:   rec.ID,
		Usage:       rec.Usage(),
	}
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		ent.ExpiresAt = &t
	}

	if rec.Expired(r.now()) {
		return ent
	}

	plan, ok := r.catalog.Plan(rec.Type)
	if !ok {
		return ent
	}

	ent.Valid = true
	ent.VehicleLimit = plan.VehicleLimit
	ent.AnalysisLimit = plan.AnalysisLimit
	ent.SetupLimit = plan.SetupLimit
	return ent
}

func (r *Resolver) adminEntitlement() Entitlement {
	ent := Entitlement{
		LicenseType:   TypeAnnual,
		Valid:         true,
		VehicleLimit:  Unlimited,
		AnalysisLimit: Unlimited,
		SetupLimit:    Unlimited,
	}
	if plan, ok := r.catalog.Plan(TypeAnnual); ok {
		ent.VehicleLimit = plan.VehicleLimit
		ent.AnalysisLimit = plan.AnalysisLimit
		ent.SetupLimit = plan.SetupLimit
	}
	return ent
}
