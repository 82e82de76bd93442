package domain

// FreeTierRuleLimit is the maximum number of forwarding rules an account
// without an active subscription may hold. The service re-checks this on
// every create; the client check exists so a doomed request is never sent.
const FreeTierRuleLimit = 3

// CanCreateRule reports whether another forwarding rule may be created
// given the subscription tier and the current rule count. It is a pure
// derivation and is never stored.
func CanCreateRule(subscriptionActive bool, currentRuleCount int) bool {
	if subscriptionActive {
		return true
	}
	return currentRuleCount < FreeTierRuleLimit
}

// CanUsePrivateChannel reports whether the account may attach a private
// channel. Private channels are a premium feature.
func CanUsePrivateChannel(subscriptionActive bool) bool {
	return subscriptionActive
}
