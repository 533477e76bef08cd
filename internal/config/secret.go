package config

const redacted = "[REDACTED]"

// Secret holds a credential such as a webhook URL or bot token. Every
// formatter and encoder prints it redacted; call Reveal to get the value.
type Secret string

// IsSet reports whether a value was configured
func (s Secret) IsSet() bool {
	return s != ""
}

// Reveal returns the raw value for handing to the client that needs it
func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return `"` + s.String() + `"`
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
