package bus

import "strings"

// Match reports whether topic satisfies pattern, using MQTT-style
// wildcards: "+" matches exactly one level, "#" (only legal as the final
// level) matches zero-or-more trailing levels.
func Match(pattern, topic string) bool {
	pl := strings.Split(pattern, "/")
	tl := strings.Split(topic, "/")

	i := 0
	for ; i < len(pl); i++ {
		switch pl[i] {
		case "#":
			return true // matches everything remaining, including nothing
		case "+":
			if i >= len(tl) {
				return false
			}
		default:
			if i >= len(tl) || pl[i] != tl[i] {
				return false
			}
		}
	}

	return i == len(tl)
}

// specificity scores a pattern by how many concrete (non-wildcard) levels
// it carries, used to resolve the longest-prefix match rule in §4.1 when
// more than one registered pattern matches an inbound topic.
func specificity(pattern string) int {
	score := 0
	for _, level := range strings.Split(pattern, "/") {
		switch level {
		case "+":
			score++
		case "#":
			// contributes nothing further; it is the least specific wildcard
		default:
			score += 2
		}
	}

	return score
}

// subscription pairs a registered pattern with its handler.
type subscription struct {
	pattern string
	handler Handler
}

// Router dispatches inbound (topic, payload) pairs to the handler whose
// registered pattern matches, preferring the most specific match when
// several patterns match the same topic.
type Router struct {
	subs []subscription
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Register adds pattern -> handler. Order of registration does not affect
// dispatch; specificity does.
func (r *Router) Register(pattern string, handler Handler) {
	r.subs = append(r.subs, subscription{pattern: pattern, handler: handler})
}

// Dispatch finds the most specific matching pattern for topic and invokes
// its handler. It is a no-op if nothing matches.
func (r *Router) Dispatch(topic string, payload []byte) {
	var best *subscription
	bestScore := -1

	for i := range r.subs {
		s := &r.subs[i]
		if !Match(s.pattern, topic) {
			continue
		}

		score := specificity(s.pattern)
		if score > bestScore {
			bestScore = score
			best = s
		}
	}

	if best != nil {
		best.handler(topic, payload)
	}
}
