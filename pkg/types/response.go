package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// WebhookAck is the body returned for every accepted billing webhook.
type WebhookAck struct {
	Received bool `json:"received"`
}

// WebhookError is the flat error body of the billing webhook endpoint.
type WebhookError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageError is the flat error body of the job trigger endpoints.
type MessageError struct {
	Error string `json:"error"`
}
