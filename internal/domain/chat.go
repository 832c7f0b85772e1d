package domain

// ChatEntry is one line of group chat. Time stays the server's string
// representation; nothing in the client ever computes with it.
type ChatEntry struct {
	Username string `json:"username"`
	Value    string `json:"value"`
	Time     string `json:"time"`
}
