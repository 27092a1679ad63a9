package mercadopago

import "time"

// Payment is the authoritative payment resource fetched from the gateway.
// The webhook body is only a pointer; every decision is made against this.
type Payment struct {
	ID                int64     `json:"id"`
	Status            string    `json:"status"`
	StatusDetail      string    `json:"status_detail"`
	ExternalReference string    `json:"external_reference"`
	TransactionAmount float64   `json:"transaction_amount"`
	CurrencyID        string    `json:"currency_id"`
	PaymentMethodID   string    `json:"payment_method_id"`
	PaymentTypeID     string    `json:"payment_type_id"`
	DateCreated       time.Time `json:"date_created"`
	DateApproved      *time.Time `json:"date_approved"`
	CollectorID       int64     `json:"collector_id"`
}

// AmountCents converts the gateway's decimal amount to minor units.
func (p *Payment) AmountCents() int64 {
	return int64(p.TransactionAmount*100 + 0.5)
}

type PreferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	Expires           bool             `json:"expires,omitempty"`
	ExpirationDateTo  *time.Time       `json:"expiration_date_to,omitempty"`
}

type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

// PreapprovalRequest creates a recurring checkout for a plan subscription.
type PreapprovalRequest struct {
	Reason            string            `json:"reason"`
	ExternalReference string            `json:"external_reference"`
	PayerEmail        string            `json:"payer_email,omitempty"`
	BackURL           string            `json:"back_url,omitempty"`
	AutoRecurring     AutoRecurring     `json:"auto_recurring"`
}

type AutoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type Preapproval struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}
