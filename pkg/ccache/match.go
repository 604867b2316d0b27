package ccache

// RealmSeparator separates the name part of a principal from its realm.
const RealmSeparator = '@'

// MatchesUser reports whether the unparsed principal name belongs to user:
// it must start with user and continue with the realm separator. The realm
// itself is not inspected here.
func MatchesUser(user, principal string) bool {
	if len(principal) <= len(user) {
		return false
	}
	return principal[:len(user)] == user && principal[len(user)] == RealmSeparator
}
