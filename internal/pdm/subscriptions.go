package pdm

import "sort"

// SubscriptionSet maps part numbers to the sorted list of subscribed users.
type SubscriptionSet map[string][]string

func (s SubscriptionSet) clone() SubscriptionSet {
	next := make(SubscriptionSet, len(s)+1)
	for k, v := range s {
		users := make([]string, len(v))
		copy(users, v)
		next[k] = users
	}
	return next
}

// Subscribers returns the users subscribed to a part.
func (s SubscriptionSet) Subscribers(part string) []string {
	return s[part]
}

// IsSubscribed reports whether user is subscribed to part.
func (s SubscriptionSet) IsSubscribed(part, user string) bool {
	for _, u := range s[part] {
		if u == user {
			return true
		}
	}
	return false
}

// Subscribe returns a copy with user added to the part's subscribers.
// Subscribing twice is a no-op: the second return is false when the set is
// unchanged, letting callers skip a pointless save.
func (s SubscriptionSet) Subscribe(part, user string) (SubscriptionSet, bool) {
	if s.IsSubscribed(part, user) {
		return s, false
	}
	next := s.clone()
	users := append(next[part], user)
	sort.Strings(users)
	next[part] = users
	return next, true
}

// Unsubscribe returns a copy with user removed from the part's subscribers.
// Unsubscribing when not subscribed is a no-op, reported the same way as
// Subscribe.
func (s SubscriptionSet) Unsubscribe(part, user string) (SubscriptionSet, bool) {
	if !s.IsSubscribed(part, user) {
		return s, false
	}
	next := s.clone()
	users := next[part][:0:0]
	for _, u := range next[part] {
		if u != user {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		delete(next, part)
	} else {
		next[part] = users
	}
	return next, true
}
