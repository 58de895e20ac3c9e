package identity

// seeds are the fixed fallback identities consulted after the collection.
var seeds = []Identity{
	{ID: "1", Email: "admin@flarehub.com", Name: "Admin User", Role: Admin{}},
	{ID: "2", Email: "startup@example.com", Name: "Startup User", Role: Startup{}},
	{ID: "3", Email: "applicant@example.com", Name: "Applicant User", Role: Applicant{Approved: false}},
}

// Seeds returns a copy of the seed identities.
func Seeds() []Identity {
	out := make([]Identity, len(seeds))
	copy(out, seeds)
	return out
}
