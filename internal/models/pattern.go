package models

// LogGroup is a cluster of entries whose messages normalise to the same pattern.
type LogGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Pattern string   `json:"pattern"`
	Count   int      `json:"count"`
	LogIDs  []string `json:"logIds"`
}
