package bloodhound

// LoginRequest is the request body for login
type LoginRequest struct {
	LoginMethod string `json:"login_method"`
	Username    string `json:"username"`
	Secret      string `json:"secret"`
}

// loginResponse is the login response inside the API's data envelope
type loginResponse struct {
	Data struct {
		UserID       string `json:"user_id"`
		SessionToken string `json:"session_token"`
	} `json:"data"`
}

// CustomNodeKind is one registered custom node definition. Config carries
// the display metadata (icon, style); the client treats it as opaque.
type CustomNodeKind struct {
	ID       int            `json:"id,omitempty"`
	KindName string         `json:"kindName"`
	Config   map[string]any `json:"config,omitempty"`
}

// customNodesResponse is the list response inside the data envelope
type customNodesResponse struct {
	Data []CustomNodeKind `json:"data"`
}
