package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthMeResponse struct {
	User AuthMeUser `json:"user"`
}

type AuthMeUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
