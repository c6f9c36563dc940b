package dto

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}
