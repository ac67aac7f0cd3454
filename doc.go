// Package agentpay is an access-control and billing engine for usage-based
// products: payment plans, subscriptions, metered usage, and payment
// transactions over pluggable storage backends and payment providers.
//
// The entry point is PaymentManager, which orchestrates the subscription
// manager and usage tracker per plan type:
//
//	store := memory.New()
//	pm := agentpay.New(store,
//		agentpay.WithProvider(mock.New()),
//		agentpay.WithDefaultPlan("free"),
//	)
//
//	allowed, err := pm.CheckAccess(ctx, userID, "chat")
//	rec, err := pm.RecordUsage(ctx, userID, "chat", 0)
//
// Freemium users draw from a free-request allowance, pay-per-use users from
// credits bought through ProcessPayment, and subscribers from their plan's
// per-period cap. Every state change runs through validated state machines,
// so an illegal transition is a typed error, never silent corruption.
package agentpay
