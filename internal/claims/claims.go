// Package claims models the ordered, string-keyed claim bag that
// backs an authenticated identity, per Design Note §9: claims are an
// ordered sequence of (type, value, issuer), never a dynamically
// typed map, with typed accessors on top.
package claims

const (
	TypeSubject               = "sub"
	TypeIdentityProvider       = "idp"
	TypeAuthTime               = "auth_time"
	TypeExternalProviderUserID = "external_provider_user_id"
	TypePartialLoginReturnURL  = "partial_login_return_url"
	TypePartialLoginResumeID   = "partial_login_resume_id" // value is the resume id; the type carries no suffix and the original sign-in id is not recorded
)

// Claim is a single (type, value, issuer) triple.
type Claim struct {
	Type   string
	Value  string
	Issuer string
}

// Bag is an ordered collection of claims. Lookups return the first
// match, matching the teacher's "first wins" convention for other
// lookup tables in this codebase (e.g. client redirect URI matching).
type Bag struct {
	claims []Claim
}

// NewBag builds a Bag from a variadic list of claims, preserving order.
func NewBag(claims ...Claim) *Bag {
	b := &Bag{claims: make([]Claim, 0, len(claims))}
	b.claims = append(b.claims, claims...)
	return b
}

// Add appends a claim, keeping insertion order.
func (b *Bag) Add(claimType, value, issuer string) {
	b.claims = append(b.claims, Claim{Type: claimType, Value: value, Issuer: issuer})
}

// First returns the value of the first claim with the given type.
func (b *Bag) First(claimType string) (string, bool) {
	for _, c := range b.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// All returns every claim with the given type, in order.
func (b *Bag) All(claimType string) []Claim {
	var out []Claim
	for _, c := range b.claims {
		if c.Type == claimType {
			out = append(out, c)
		}
	}
	return out
}

// Remove drops every claim with the given type and returns the count
// removed.
func (b *Bag) Remove(claimType string) int {
	kept := b.claims[:0]
	removed := 0
	for _, c := range b.claims {
		if c.Type == claimType {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	b.claims = kept
	return removed
}

// Subject is a typed accessor for TypeSubject.
func (b *Bag) Subject() (string, bool) { return b.First(TypeSubject) }

// IdentityProvider is a typed accessor for TypeIdentityProvider.
func (b *Bag) IdentityProvider() (string, bool) { return b.First(TypeIdentityProvider) }

// Slice exposes the underlying claims for serialization.
func (b *Bag) Slice() []Claim { return b.claims }
