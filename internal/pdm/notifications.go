package pdm

// NotificationList is the append-only notification ledger, oldest first.
type NotificationList []Notification

// Append returns a copy of the list with entries added at the end.
func (l NotificationList) Append(entries ...Notification) NotificationList {
	next := make(NotificationList, 0, len(l)+len(entries))
	next = append(next, l...)
	next = append(next, entries...)
	return next
}

// ForRecipient returns the user's notifications in ledger order.
func (l NotificationList) ForRecipient(user string) []Notification {
	var out []Notification
	for _, n := range l {
		if n.Recipient == user {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount returns how many of the user's notifications are unread.
func (l NotificationList) UnreadCount(user string) int {
	count := 0
	for _, n := range l {
		if n.Recipient == user && !n.IsRead {
			count++
		}
	}
	return count
}

// MarkAllRead returns a copy with every unread notification for user marked
// read, plus the number of entries that changed. Other users' entries are
// untouched.
func (l NotificationList) MarkAllRead(user string) (NotificationList, int) {
	changed := 0
	next := make(NotificationList, len(l))
	copy(next, l)
	for i := range next {
		if next[i].Recipient == user && !next[i].IsRead {
			next[i].IsRead = true
			changed++
		}
	}
	return next, changed
}
