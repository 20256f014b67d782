package session

// Identity is the broker endpoint and credentials for one session.
// Each field is bounded by the configuration layer before it gets here.
type Identity struct {
	Host     string
	Username string
	Password string
}

// Valid reports whether the identity names a broker host.
func (id Identity) Valid() bool {
	return id.Host != ""
}

// ResolveIdentity returns override when it is valid, def otherwise.
func ResolveIdentity(def, override Identity) Identity {
	if override.Valid() {
		return override
	}
	return def
}
