package cases

import "time"

// Party roles accepted on case creation.
const (
	RoleClaimant       = "claimant"
	RoleRespondent     = "respondent"
	RoleRepresentative = "representative"
)

// Party is one participant of a dispute with a role tag.
type Party struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Case represents one dispute owned by a claimant.
type Case struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Title           string    `json:"title"`
	Narrative       string    `json:"narrative"`
	ClaimAmount     float64   `json:"claimAmount"`
	Currency        string    `json:"currency"`
	Kanton          string    `json:"kanton,omitempty"`
	Parties         []Party   `json:"parties"`
	Status          Status    `json:"status"`
	CurrentStep     string    `json:"currentStep"`
	NextActionLabel string    `json:"nextActionLabel"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
