package dto

// PaymentInitResponse acknowledges a recorded payment intent.
type PaymentInitResponse struct {
	PaymentID string  `json:"payment_id"`
	Reference string  `json:"reference"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Amount    float64 `json:"amount"`
}

// ReceiptLink is a signed, expiring download link for a stored receipt.
type ReceiptLink struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
