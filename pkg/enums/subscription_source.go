package enums

// SubscriptionSource names the writer that applied a vendor subscription change.
type SubscriptionSource string

const (
	SubscriptionSourceWebhook    SubscriptionSource = "webhook"
	SubscriptionSourceReconciler SubscriptionSource = "reconciler"
	SubscriptionSourceAdmin      SubscriptionSource = "admin"
)

func (s SubscriptionSource) String() string {
	return string(s)
}
