package email

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// OrderConfirmation is built from the order snapshot, so it shows what the customer paid.
type OrderConfirmation struct {
	OrderID      string
	CustomerName string
	Items        []OrderItem
	Total        decimal.Decimal
}

var orderTemplate = template.Must(template.New("order").Funcs(template.FuncMap{
	"money": FormatMoney,
	"subtotal": func(i OrderItem) decimal.Decimal {
		return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Thank you for your order{{if .CustomerName}}, {{.CustomerName}}{{end}}</h1>
	<p>Order number <strong style="font-family: monospace;">{{.OrderID}}</strong></p>
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 10px; text-align: left;">Item</th>
				<th style="padding: 10px; text-align: center;">Qty</th>
				<th style="padding: 10px; text-align: right;">Price</th>
				<th style="padding: 10px; text-align: right;">Subtotal</th>
			</tr>
		</thead>
		<tbody>
{{- range .Items}}
			<tr>
				<td style="padding: 10px; border-bottom: 1px solid #eee;">{{.Name}}</td>
				<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
				<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money .Price}}</td>
				<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money (subtotal .)}}</td>
			</tr>
{{- end}}
		</tbody>
	</table>
	<p style="text-align: right; font-size: 18px;">Total <strong>{{money .Total}}</strong></p>
	<p style="font-size: 12px; color: #999;">This is an automated message. Please do not reply.</p>
</body>
</html>
`))

func RenderOrderConfirmation(c OrderConfirmation) (string, error) {
	var b bytes.Buffer
	if err := orderTemplate.Execute(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FormatMoney renders a dollar amount with two decimals and thousands separators.
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
