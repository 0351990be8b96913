package cache

// Read-model keys shared by the billing packages.
const (
	KeySubscriptions = "subscriptions"
	prefixUserSub    = "user-subscription:"
	prefixBilling    = "billing:"
	PrefixRenewal    = "renewal:"
)

func KeyUserSubscription(userID string) string { return prefixUserSub + userID }

func KeyBilling(userID string) string { return prefixBilling + userID }

// KeyRenewal keys a renewal status by provider and subscription because the
// same subscription id may be queried against two providers during a
// migration.
func KeyRenewal(provider, subscriptionID string) string {
	return PrefixRenewal + provider + ":" + subscriptionID
}

// DependentsOf lists the read-models that must be refetched after a checkout
// or renewal change of userID.
func DependentsOf(userID string) []string {
	return []string{KeySubscriptions, KeyUserSubscription(userID), KeyBilling(userID)}
}
