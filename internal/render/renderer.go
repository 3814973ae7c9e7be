// Package render turns trigger configuration plus order data into the final
// message text sent over the chat channel.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fields carries the raw order data a template can reference. Zero values
// render as safe defaults, never as errors.
type Fields struct {
	OrderNumber  string
	CustomerName string
	TotalValue   float64
	HasTotal     bool
	StatusLabel  string
	DeliveryDate *time.Time
	ItemCount    int
	PhaseLabel   string
	PriorityLabel string
	Items        []ItemLine
	Now          time.Time
}

type ItemLine struct {
	Description string
	Quantity    int
}

// Options selects which sections the composed message carries. The section
// order is fixed; flags only switch sections on or off.
type Options struct {
	Header              string
	IncludeOrderNumber  bool
	IncludeCustomer     bool
	IncludeItemCount    bool
	IncludeTotalValue   bool
	IncludeStatus       bool
	IncludeDeliveryDate bool
	IncludeDeadline     bool
	IncludePhase        bool
	IncludePriority     bool
	IncludeItems        bool
}

const (
	maxItemLines = 5
	footer       = "Acesse o painel OrderHub para mais detalhes."
)

// placeholders supported by custom templates, in the order they are
// substituted.
var placeholders = []string{
	"order_number", "customer_name", "total_value",
	"status", "delivery_date", "item_count",
}

// Custom performs literal placeholder substitution on an operator-written
// template. Known placeholders with missing data become empty strings;
// anything else in braces is left untouched.
func Custom(tmpl string, f Fields) string {
	values := map[string]string{
		"order_number":  f.OrderNumber,
		"customer_name": f.CustomerName,
		"status":        f.StatusLabel,
		"item_count":    strconv.Itoa(f.ItemCount),
	}
	if f.HasTotal {
		values["total_value"] = FormatCurrency(f.TotalValue)
	} else {
		values["total_value"] = ""
	}
	if f.DeliveryDate != nil {
		values["delivery_date"] = FormatDate(*f.DeliveryDate)
	} else {
		values["delivery_date"] = ""
	}

	out := tmpl
	for _, key := range placeholders {
		out = strings.ReplaceAll(out, "{"+key+"}", values[key])
	}
	return out
}

// Compose builds the message section by section in the fixed order.
func Compose(opts Options, f Fields) string {
	var b strings.Builder

	if opts.Header != "" {
		b.WriteString(opts.Header)
		b.WriteString("\n\n")
	}
	if opts.IncludeOrderNumber && f.OrderNumber != "" {
		fmt.Fprintf(&b, "Pedido: %s\n", f.OrderNumber)
	}
	if opts.IncludeCustomer && f.CustomerName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", f.CustomerName)
	}
	if opts.IncludeItemCount {
		fmt.Fprintf(&b, "Itens: %d\n", f.ItemCount)
	}
	if opts.IncludeTotalValue && f.HasTotal {
		fmt.Fprintf(&b, "Valor total: %s\n", FormatCurrency(f.TotalValue))
	}
	if opts.IncludeStatus && f.StatusLabel != "" {
		fmt.Fprintf(&b, "Status: %s\n", f.StatusLabel)
	}
	if opts.IncludeDeliveryDate && f.DeliveryDate != nil {
		fmt.Fprintf(&b, "Entrega: %s\n", FormatDate(*f.DeliveryDate))
	}
	if opts.IncludeDeadline && f.DeliveryDate != nil {
		days := DaysUntil(f.Now, *f.DeliveryDate)
		switch {
		case days < 0:
			fmt.Fprintf(&b, "Prazo: %d dia(s) em atraso\n", -days)
		case days == 0:
			b.WriteString("Prazo: entrega hoje\n")
		default:
			fmt.Fprintf(&b, "Prazo: %d dia(s) restante(s)\n", days)
		}
	}
	if opts.IncludePhase && f.PhaseLabel != "" {
		fmt.Fprintf(&b, "Fase: %s\n", f.PhaseLabel)
	}
	if opts.IncludePriority && f.PriorityLabel != "" {
		fmt.Fprintf(&b, "Prioridade: %s\n", f.PriorityLabel)
	}
	if opts.IncludeItems && len(f.Items) > 0 {
		b.WriteString("\nItens do pedido:\n")
		shown := f.Items
		if len(shown) > maxItemLines {
			shown = shown[:maxItemLines]
		}
		for _, it := range shown {
			fmt.Fprintf(&b, "- %dx %s\n", it.Quantity, it.Description)
		}
		if extra := len(f.Items) - maxItemLines; extra > 0 {
			fmt.Fprintf(&b, "+%d mais\n", extra)
		}
	}

	b.WriteString("\n")
	b.WriteString(footer)
	return b.String()
}

// FormatCurrency renders a value as Brazilian currency, two decimals with
// dot grouping and comma decimals: R$ 1.234,56.
func FormatCurrency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(v*100 + 0.5)
	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped.String(), frac)
}

// FormatDate renders a calendar date as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// DaysUntil is the whole-day difference between two calendar dates,
// ignoring time of day. Same day yields 0; past deadlines are negative.
func DaysUntil(now, deadline time.Time) int {
	truncate := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(truncate(deadline).Sub(truncate(now)).Hours() / 24)
}
