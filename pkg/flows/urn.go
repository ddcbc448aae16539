package flows

import (
	"encoding/json"
	"strings"

	"github.com/excellent-lang/excellent/pkg/telephony"
)

// URNScheme identifies the kind of address a contact URN holds.
type URNScheme string

const (
	SchemeTel     URNScheme = "tel"
	SchemeTwitter URNScheme = "twitter"
)

// URNSchemes are the supported schemes in priority order.
var URNSchemes = []URNScheme{SchemeTel, SchemeTwitter}

// AnonMask replaces URN displays for anonymous orgs.
const AnonMask = "********"

// URN is a universal resource name for a contact address, e.g.
// tel:+250788382382 or twitter:joe.
type URN struct {
	Scheme URNScheme
	Path   string
}

// ParseURN parses a URN from its string form.
func ParseURN(urn string) (URN, error) {
	scheme, path, found := strings.Cut(urn, ":")
	if !found || path == "" {
		return URN{}, parseErrorf("Invalid URN: %s", urn)
	}

	switch URNScheme(strings.ToLower(scheme)) {
	case SchemeTel:
		return URN{Scheme: SchemeTel, Path: path}, nil
	case SchemeTwitter:
		return URN{Scheme: SchemeTwitter, Path: path}, nil
	}
	return URN{}, parseErrorf("Invalid URN scheme: %s", scheme)
}

func (u URN) String() string {
	return string(u.Scheme) + ":" + u.Path
}

// Display renders this URN for the given org. Anonymous orgs get a mask, and
// phone numbers show in national format unless the full number is asked for.
func (u URN) Display(org *Org, full bool) string {
	if org.Anon {
		return AnonMask
	}
	if u.Scheme == SchemeTel && !full {
		return telephony.NationalFormat(u.Path)
	}
	return u.Path
}

func (u URN) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *URN) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseURN(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
