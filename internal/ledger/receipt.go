package ledger

import (
	"fmt"
	"strings"

	"github.com/sweethome/ledger/internal/money"
)

// RenderReceipt formats a sale as plain text suitable for pasting into a
// WhatsApp message. All amounts use Brazilian currency formatting.
func RenderReceipt(storeName, customerName string, charges []Charge) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s*\n", storeName)
	fmt.Fprintf(&b, "Comprovante de Venda\n")
	if customerName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", customerName)
	}
	if len(charges) > 0 {
		fmt.Fprintf(&b, "Data: %s\n", charges[0].SoldAt.Format("02/01/2006"))
		if charges[0].Seller != "" {
			fmt.Fprintf(&b, "Vendedor: %s\n", charges[0].Seller)
		}
	}
	b.WriteString(strings.Repeat("-", 32) + "\n")

	var gross, net float64
	for _, ch := range charges {
		fmt.Fprintf(&b, "%dx %s\n", ch.Quantity, ch.ProductName)
		line := fmt.Sprintf("   %s", money.FormatBRL(ch.Net))
		if discount := money.Round2(ch.Gross - ch.Net); discount > 0 {
			line += fmt.Sprintf(" (desconto %s)", money.FormatBRL(discount))
		}
		b.WriteString(line + "\n")
		gross = money.Round2(gross + ch.Gross)
		net = money.Round2(net + ch.Net)
	}

	b.WriteString(strings.Repeat("-", 32) + "\n")
	if discount := money.Round2(gross - net); discount > 0 {
		fmt.Fprintf(&b, "Subtotal: %s\n", money.FormatBRL(gross))
		fmt.Fprintf(&b, "Desconto: %s\n", money.FormatBRL(discount))
	}
	fmt.Fprintf(&b, "*Total: %s*\n", money.FormatBRL(net))

	if len(charges) > 0 {
		fmt.Fprintf(&b, "Pagamento: %s\n", charges[0].Method)
		if !charges[0].Method.Immediate() {
			b.WriteString(renderPlan(charges))
		}
	}
	b.WriteString("\nObrigado pela preferencia!\n")
	return b.String()
}

// renderPlan merges installments across charges into one schedule, summing
// amounts that fall on the same due date.
func renderPlan(charges []Charge) string {
	var order []string
	totals := map[string]float64{}
	for _, ch := range charges {
		for _, ins := range ch.Installments {
			key := ins.DueDate.Format("02/01/2006")
			if _, ok := totals[key]; !ok {
				order = append(order, key)
			}
			totals[key] = money.Round2(totals[key] + ins.Amount)
		}
	}
	if len(order) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Parcelas (%d):\n", len(order))
	for i, key := range order {
		fmt.Fprintf(&b, "  %d/%d - %s - %s\n", i+1, len(order), key, money.FormatBRL(totals[key]))
	}
	return b.String()
}
