// Package policy exposes the blacklist consulted by the dispatch pipeline.
// Blacklisted peers are removed from every peer-limited share; they still
// see unconditionally scoped (scene-embedded) content.
package policy

// Blacklist reports the set of peer ids excluded from peer-limited shares.
type Blacklist interface {
	Blacklisted() map[string]bool
}

// Static is a fixed blacklist, typically loaded from config.
type Static map[string]bool

func NewStatic(peerIDs []string) Static {
	s := make(Static, len(peerIDs))
	for _, id := range peerIDs {
		s[id] = true
	}
	return s
}

func (s Static) Blacklisted() map[string]bool {
	return s
}

// BlacklistFunc adapts a function to the Blacklist interface.
type BlacklistFunc func() map[string]bool

func (f BlacklistFunc) Blacklisted() map[string]bool {
	return f()
}
