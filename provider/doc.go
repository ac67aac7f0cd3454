// Package provider defines the payment gateway contract and a registry with
// configuration-gated construction. Concrete gateways live in the
// subpackages: mock, stripe, paddle, and crypto.
package provider
