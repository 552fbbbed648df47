package target

// ProviderCredential is the provider id written for password credentials.
const ProviderCredential = "credential"

// Capabilities declares which optional features the target deployment has
// enabled. The descriptor is constructed once at run start from configuration
// and treated as immutable for the remainder of the run.
type Capabilities struct {
	Admin       bool
	Anonymous   bool
	PhoneNumber bool
	Providers   []string
}

// SupportsProvider reports whether the target is configured for the named
// federated provider.
func (c Capabilities) SupportsProvider(provider string) bool {
	for _, candidate := range c.Providers {
		if candidate == provider {
			return true
		}
	}
	return false
}
