package ticketing

// Ticket is the read-mostly projection of a ServiceNow incident that the
// pipeline needs for correlation and notification text. The ticketing
// backend owns the full record.
type Ticket struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	State            string `json:"state"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Category         string `json:"category"`
	AssignedTo       string `json:"assigned_to"`
	CorrelationID    string `json:"correlation_id"`
	CreatedOn        string `json:"sys_created_on"`
	UpdatedOn        string `json:"sys_updated_on"`
}

// CreatePayload carries everything needed to open an incident. The
// CorrelationID doubles as the idempotency key: the backend deduplicates
// retried creates for the same originating message.
type CreatePayload struct {
	Title           string
	Description     string
	Priority        string
	Category        string
	Subcategory     string
	Urgency         string
	Impact          string
	AssignmentGroup string
	CallerName      string
	CorrelationID   string
}
