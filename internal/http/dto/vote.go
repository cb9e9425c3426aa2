// Package dto define los contratos de entrada/salida de la API pública.
package dto

// VoteRequest es el cuerpo (o query string) de POST /vote.
type VoteRequest struct {
	Poll         string `json:"poll"`
	Vote         string `json:"vote"`
	IsOpen       bool   `json:"isOpen"`
	Country      string `json:"country,omitempty"`
	CaptchaToken string `json:"captchaToken,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	PhoneToken   string `json:"phoneToken,omitempty"`
	Email        string `json:"email,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// VoteResponse es la respuesta de POST /vote.
type VoteResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}
