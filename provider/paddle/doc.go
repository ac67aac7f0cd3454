// Package paddle provides the Paddle payment gateway. Charges are Paddle
// transactions created from catalog prices and settled through the hosted
// checkout.
package paddle
