// Package crypto provides a stablecoin payment gateway over raw Ethereum
// JSON-RPC. Payments are inbound ERC-20 transfers verified by receipt,
// Transfer log, and confirmation depth; there are no refunds on chain.
package crypto
