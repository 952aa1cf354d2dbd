package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

const scheduleLayout = "15:04 02/01/2006"

var ticketTmpl = template.Must(template.New("ticket").Parse(`<div style="font-family:system-ui,sans-serif;max-width:560px;margin:auto">
  <h2>Booking ticket - {{.Title}}</h2>
  <p>Hello <b>{{.Name}}</b>, your seats are held. Please pay at the event.</p>
  <table style="border-collapse:collapse">
    <tr><td style="padding:6px 8px">Code</td><td style="padding:6px 8px"><b>{{.Code}}</b></td></tr>
    <tr><td style="padding:6px 8px">Event</td><td style="padding:6px 8px">{{.Title}}</td></tr>
    <tr><td style="padding:6px 8px">Time</td><td style="padding:6px 8px">{{.Schedule}}</td></tr>
    <tr><td style="padding:6px 8px">Quantity</td><td style="padding:6px 8px">{{.Quantity}}</td></tr>
    <tr><td style="padding:6px 8px">Amount</td><td style="padding:6px 8px">{{.Amount}}</td></tr>
    <tr><td style="padding:6px 8px">Payment</td><td style="padding:6px 8px">{{.Method}}</td></tr>
    <tr><td style="padding:6px 8px">Status</td><td style="padding:6px 8px">{{.Status}}</td></tr>
  </table>
  <p style="margin-top:16px">Thank you for being part of Music Space.</p>
</div>`))

type ticketData struct {
	Title    string
	Name     string
	Code     string
	Schedule string
	Quantity int
	Amount   string
	Method   string
	Status   string
}

// Render builds the confirmation ticket for a booking. Event title and
// customer name are HTML escaped.
func Render(v domain.BookingView) (ports.Ticket, error) {
	title := v.Event.Title
	if title == "" {
		title = "Event"
	}
	data := ticketData{
		Title:    title,
		Name:     v.Customer.Name,
		Code:     v.Code,
		Schedule: formatSchedule(v.Event.StartTime, v.Event.EndTime),
		Quantity: v.Quantity,
		Amount:   FormatAmount(v.AmountCents, v.Event.Currency),
		Method:   strings.ToUpper(v.Method),
		Status:   string(v.Status),
	}

	var html bytes.Buffer
	if err := ticketTmpl.Execute(&html, data); err != nil {
		return ports.Ticket{}, errors.Wrap(err, "render ticket")
	}

	text := fmt.Sprintf("Code: %s\nEvent: %s\nTime: %s\nQuantity: %d\nAmount: %s\nPayment: %s\nStatus: %s\n",
		data.Code, data.Title, data.Schedule, data.Quantity, data.Amount, data.Method, data.Status)

	return ports.Ticket{
		BookingID: v.ID,
		Code:      v.Code,
		To:        v.Customer.Email,
		Subject:   "Booking ticket • " + title,
		HTML:      html.String(),
		Text:      text,
	}, nil
}

// FormatAmount renders integer cents as whole currency units with dot
// thousands separators, e.g. 15000000 VND cents -> "150.000 VND".
func FormatAmount(cents int64, currency string) string {
	if currency == "" {
		currency = "VND"
	}
	neg := cents < 0
	if neg {
		cents = -cents
	}
	units := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(units, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != 0 {
		fmt.Fprintf(&b, ",%02d", frac)
	}
	return b.String() + " " + currency
}

func formatSchedule(start time.Time, end *time.Time) string {
	if start.IsZero() {
		return ""
	}
	s := start.Format(scheduleLayout)
	if end != nil && !end.IsZero() {
		s += " - " + end.Format(scheduleLayout)
	}
	return s
}
