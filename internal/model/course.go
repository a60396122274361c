package model

// Course is a catalog entry. Read-only reference data for the chat core.
type Course struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Credits  int    `json:"credits"`
	Semester string `json:"semester"` // "1" or "2"; stored as text like level
	Level    string `json:"level"` // academic level the course belongs to
	Lecturer string `json:"lecturer,omitempty"`
}
