package message

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/sems-monitoring/internal/device"
)

const (
	billingPeriod = 30 * 24 * time.Hour
	dueDateLayout = "1/2/2006"
)

// BillingFactsFromDevice prices the current reading of d. The bill is due
// thirty days after now.
func BillingFactsFromDevice(d device.Device, now time.Time, statementBase string, ch Channel) BillingFacts {
	return BillingFacts{
		CustomerName:  d.Name,
		MeterID:       d.ID,
		AmountDue:     strconv.FormatFloat(d.Usage*d.Price, 'f', 2, 64),
		DueDate:       now.Add(billingPeriod).Format(dueDateLayout),
		Usage:         strconv.FormatFloat(d.Usage, 'f', 2, 64) + " kWh",
		StatementLink: strings.TrimRight(statementBase, "/") + "/billing/" + url.PathEscape(d.ID),
		Channel:       ch,
	}
}

// AlertFactsFromDevice fills the customer fields of an alert for d.
func AlertFactsFromDevice(d device.Device, t AlertType, ch Channel, outageDetails string) AlertFacts {
	f := AlertFacts{
		CustomerName: d.Name,
		MeterID:      d.ID,
		AlertType:    t,
		Channel:      ch,
	}
	if t == AlertOutageScheduled {
		f.OutageDetails = outageDetails
	}
	return f
}

// Recipient picks the address for ch from the device owner.
func Recipient(d device.Device, ch Channel) string {
	if ch == ChannelEmail {
		return d.Email
	}
	return d.ContactNumber
}
