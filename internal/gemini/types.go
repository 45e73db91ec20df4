package gemini

// IntentResult is the outcome of classifying whether a message is a
// genuine support request.
type IntentResult struct {
	IsRequest  bool    `json:"is_support_request"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// TicketSummary is the structured summary generated from a support request.
type TicketSummary struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	ProblemStatement string `json:"problem_statement"`
	UserImpact       string `json:"user_impact"`
	UrgencyLevel     string `json:"urgency_level"`
}

// TicketCategory is the categorization and prioritization of a summary.
type TicketCategory struct {
	Category        string `json:"category"`
	Subcategory     string `json:"subcategory"`
	Priority        string `json:"priority"`
	Urgency         string `json:"urgency"`
	AssignmentGroup string `json:"assignment_group"`
}

// SimilarityResult is the probabilistic judgement of whether a message
// duplicates a recent ticket. It is a soft signal: callers compare
// Confidence against a configured threshold.
type SimilarityResult struct {
	IsDuplicate   bool    `json:"is_duplicate"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	SimilarTicket string  `json:"similar_ticket_number"`
}
