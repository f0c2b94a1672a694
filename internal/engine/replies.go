package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ChatWallet/internal/record"
)

const (
	processingNotice = "Processing transaction... ⏳"
	pendingReminder  = "Please type 'yes' to confirm or 'no' to cancel the pending transaction."
	cancelledReply   = "Transaction cancelled. ❌"
	noHistoryReply   = "No transactions yet. 📭"

	addressPreviewLen   = 6
	signaturePreviewLen = 8
)

func helpReply(symbol string) string {
	return strings.Join([]string{
		"Here is what I can do: 🤖",
		"• balance - show your wallet balance",
		"• address - show your wallet address",
		fmt.Sprintf("• send <amount> %s to <address or contact> - send funds", strings.ToLower(symbol)),
		"• history - show your latest transactions",
		"Transfers always ask for a yes/no confirmation first.",
	}, "\n")
}

func balanceReply(balance decimal.Decimal, symbol string) string {
	return fmt.Sprintf("Your current balance is %s %s. 💰", balance.StringFixed(4), symbol)
}

func addressReply(address string) string {
	return fmt.Sprintf("Your wallet address is:\n%s 🔑", address)
}

func confirmPrompt(amount decimal.Decimal, symbol, recipient string) string {
	return fmt.Sprintf("Are you sure you want to send %s %s to %s...? (yes/no) 🤔",
		amount.String(), symbol, preview(recipient, addressPreviewLen))
}

func sentReply(signature string) string {
	return fmt.Sprintf("✅ Transaction Sent!\nSignature: %s...", preview(signature, signaturePreviewLen))
}

func failedReply(reason string) string {
	if reason == "" {
		reason = "unknown error"
	}
	return "❌ Transaction Failed: " + reason
}

func contactNotFoundReply(name string) string {
	return fmt.Sprintf("❌ Contact %q not found. Add it to your contacts or use an address.", name)
}

func invalidRecipientReply(recipient string) string {
	return fmt.Sprintf("❌ %s is not a valid recipient address.", recipient)
}

func balanceFailedReply(reason string) string {
	return "❌ Could not fetch your balance: " + reason
}

func historyReply(txs []record.Transaction, symbol string) string {
	if len(txs) == 0 {
		return noHistoryReply
	}
	lines := make([]string, 0, len(txs)+1)
	lines = append(lines, "Your latest transactions: 📜")
	for _, tx := range txs {
		line := fmt.Sprintf("• %s %s %s", tx.Kind, tx.Amount.String(), symbol)
		if tx.Recipient != "" {
			line += " to " + preview(tx.Recipient, addressPreviewLen) + "..."
		}
		line += fmt.Sprintf(" (%s, %s...)", tx.Timestamp.UTC().Format("2006-01-02 15:04"), preview(tx.Signature, signaturePreviewLen))
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// preview returns the first n runes of s.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
