package presence

// Index maps a display name to the connection currently authorized to
// receive messages addressed to that name. Bind overwrites unconditionally,
// so the most recent join under a name wins routing. Entries are not cleared
// on disconnect: Resolve may return the id of a connection that is long
// gone, and the router treats a dead target as an unresolved recipient at
// send time. Not safe for concurrent use on its own; Store serializes access.
type Index struct {
	byName map[string]string
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{byName: make(map[string]string)}
}

// Bind sets the mapping for a username, replacing any prior value
func (ix *Index) Bind(username, connID string) {
	ix.byName[username] = connID
}

// Resolve returns the connection id bound to a username, if any
func (ix *Index) Resolve(username string) (string, bool) {
	connID, ok := ix.byName[username]
	return connID, ok
}

// Unbind removes the mapping for a username
func (ix *Index) Unbind(username string) {
	delete(ix.byName, username)
}

// Len returns the number of bound usernames
func (ix *Index) Len() int {
	return len(ix.byName)
}
