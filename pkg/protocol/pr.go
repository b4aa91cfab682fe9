package protocol

// PRStatus is the state of a pull request.
type PRStatus struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Merged bool   `json:"merged"`
	URL    string `json:"url"`
}

// PRCheck is the outcome of correlating a ticket with its pull request.
// Exactly one of Status and Error is set.
type PRCheck struct {
	Issue  string    `json:"issue,omitempty"`
	Number int       `json:"pr_number,omitempty"`
	Status *PRStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// OK reports whether the lookup succeeded.
func (c PRCheck) OK() bool { return c.Error == "" && c.Status != nil }
