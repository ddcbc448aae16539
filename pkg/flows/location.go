package flows

// LocationLevel is a level in the administrative boundary hierarchy.
type LocationLevel string

const (
	LevelState    LocationLevel = "state"
	LevelDistrict LocationLevel = "district"
	LevelWard     LocationLevel = "ward"
)

// Location is an administrative boundary.
type Location struct {
	Name string
}

// LocationResolver looks up administrative boundaries by name. Runs without
// a resolver simply never match location rules.
type LocationResolver interface {
	// Resolve parses a location of the given level from the input text, for
	// the given 2-letter country code. Parent narrows the search to
	// districts of a state or wards of a district, and may be nil.
	Resolve(input, country string, level LocationLevel, parent *Location) *Location
}
