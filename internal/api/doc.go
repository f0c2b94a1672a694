// Package api exposes the chat wallet over HTTP: the conversational endpoint
// consumed by messaging transports, plus wallet, airdrop, contact book and
// transaction history endpoints for dashboards.
package api
