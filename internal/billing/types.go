package billing

// Subscription запись подписки у биллингового провайдера.
// Платформа, к которой относится подписка, передается провайдером
// в метаданных под ключом "platform".
type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"` // active, trialing, past_due, canceled
	Metadata map[string]string `json:"metadata"`
}

// listSubscriptionsResponse ответ провайдера на запрос подписок клиента.
type listSubscriptionsResponse struct {
	Data []Subscription `json:"data"`
}

// Platform возвращает платформу из метаданных подписки,
// пустая строка — если провайдер ее не проставил.
func (s Subscription) Platform() string {
	return s.Metadata["platform"]
}

// IsActive сообщает, дает ли подписка оплаченный доступ прямо сейчас.
func (s Subscription) IsActive() bool {
	return s.Status == "active"
}
