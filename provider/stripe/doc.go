// Package stripe provides the Stripe payment gateway over PaymentIntents.
// One-off charges return pending transactions carrying the client secret;
// settlement is observed through VerifyPayment or GetPaymentStatus.
package stripe
