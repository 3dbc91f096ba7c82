package dto

// ProblemResponse is the wire shape for every error payload.
type ProblemResponse struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
