package library

// Set bundles both libraries over one backend.
type Set struct {
	Advertisers *Advertisers
	Audiences   *Audiences
}

// NewSet builds both libraries from the embedded seed.
func NewSet(backend Backend) (*Set, error) {
	seed, err := Defaults()
	if err != nil {
		return nil, err
	}
	return &Set{
		Advertisers: NewAdvertisers(seed.Advertisers, backend),
		Audiences:   NewAudiences(seed.Audiences, backend),
	}, nil
}
