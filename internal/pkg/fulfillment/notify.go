package fulfillment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/catalog"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/interpretation"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
)

// FailureMessage is the only thing a user learns about a terminally failed order.
const FailureMessage = "We could not generate your report. Support has been notified."

func paymentInstructions(order *models.Order, product catalog.Product, c *catalog.Catalog, paymentURL string, testMode bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s: %s\n", order.Code, product.Title)
	fmt.Fprintf(&b, "Price: %s\n", c.FormatPrice(order.PriceAmount))
	if testMode {
		b.WriteString("Test mode is on: the order is confirmed for free and your report is on its way.")
		return b.String()
	}
	if paymentURL != "" {
		fmt.Fprintf(&b, "Pay here: %s\n", strings.ReplaceAll(paymentURL, "{code}", order.Code))
	}
	fmt.Fprintf(&b, "Quote the order code %s with your payment. The report is sent here as soon as the payment arrives.", order.Code)
	return b.String()
}

func paymentReceivedText(order *models.Order) string {
	return fmt.Sprintf("Payment received for order %s. Your report is being generated, this usually takes a few minutes.", order.Code)
}

func operatorAlertBody(order *models.Order, stage string) string {
	return fmt.Sprintf("order id: %s\ncode: %s\nuser: %s\nreport: %s\nstage: %s\nlast error: %s\n",
		order.ID, order.Code, order.UserID, order.ReportType, stage, order.LastError)
}

// StatusText describes an order to its owner. Retry counts stay internal.
func StatusText(order *models.Order, supportEmail string) string {
	switch order.State {
	case models.OrderStatePendingPayment:
		return fmt.Sprintf("Order %s is waiting for payment.", order.Code)
	case models.OrderStatePaid, models.OrderStateComputing, models.OrderStateInterpreting, models.OrderStateRendering:
		return fmt.Sprintf("Order %s is paid and your report is being prepared.", order.Code)
	case models.OrderStateDelivered:
		return fmt.Sprintf("Order %s was delivered.", order.Code)
	case models.OrderStateFailedTerminal:
		if supportEmail != "" {
			return fmt.Sprintf("Order %s could not be completed. Support has been notified, you can reach them at %s.", order.Code, supportEmail)
		}
		return fmt.Sprintf("Order %s could not be completed. Support has been notified.", order.Code)
	}
	return fmt.Sprintf("Order %s: %s", order.Code, order.State)
}

func previewText(person models.Person, profile numerology.Profile, narrative *interpretation.NarrativeSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Free preview for %s (%s)\n\n", person.Name, person.Birthdate)
	for _, n := range profile.Numbers() {
		fmt.Fprintf(&b, "%s: %d\n", n.Title, n.Value)
	}
	if text := narrativeText(narrative); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	b.WriteString("\n\nThe full report explains every number in depth: /buy <birthdate> <full name>")
	return b.String()
}

// narrativeText prefers the summary and falls back to the sections in key order.
func narrativeText(n *interpretation.NarrativeSet) string {
	if n.Empty() {
		return ""
	}
	if summary := strings.TrimSpace(n.Summary); summary != "" {
		return summary
	}
	keys := make([]string, 0, len(n.Sections))
	for k := range n.Sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(n.Sections[k]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n\n")
}
