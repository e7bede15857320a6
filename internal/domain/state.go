package domain

// Well-known auxiliary state keys. The engine reads and rewrites these as a
// side effect of a turn; the translator threads the mood value into every
// emitted message.
const (
	StateKeyMood            = "user:mood"
	StateKeyTemperatureUnit = "user_preference_temperature_unit"
)

// SessionState is the auxiliary key-value state carried alongside a
// conversation. Values set at creation are authoritative until a later
// event's state delta overwrites them; a delta always wins over the
// cached value. Version counts applied deltas.
//
// SessionState is not safe for concurrent use; the session manager
// guarantees at most one in-flight turn per conversation.
type SessionState struct {
	Version int
	values  map[string]string
}

// NewSessionState builds a state bag seeded with the given defaults.
func NewSessionState(defaults map[string]string) *SessionState {
	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &SessionState{values: values}
}

// Get returns the tracked value for key, or "" if unset.
func (s *SessionState) Get(key string) string {
	return s.values[key]
}

// Apply overwrites tracked values with the delta and bumps the version.
// An empty delta is a no-op.
func (s *SessionState) Apply(delta map[string]string) {
	if len(delta) == 0 {
		return
	}
	for k, v := range delta {
		s.values[k] = v
	}
	s.Version++
}

// Snapshot returns a copy of the current values.
func (s *SessionState) Snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
