package domain

// Contact holds the display identity for an export. It is supplied by the
// caller when the export starts and never mutated.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
