package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sems-monitoring/internal/device"
)

func TestBillingFactsFromDevice(t *testing.T) {
	d := device.Device{ID: "0917 111", Name: "Jane", Usage: 10, Price: 12.345, Email: "jane@example.com", ContactNumber: "0917"}
	now := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

	f := BillingFactsFromDevice(d, now, "https://example.com/", ChannelEmail)
	assert.Equal(t, "123.45", f.AmountDue)
	assert.Equal(t, "1/31/2024", f.DueDate)
	assert.Equal(t, "10.00 kWh", f.Usage)
	assert.Equal(t, "https://example.com/billing/0917%20111", f.StatementLink)
	require.NoError(t, f.Validate())

	assert.Equal(t, "jane@example.com", Recipient(d, ChannelEmail))
	assert.Equal(t, "0917", Recipient(d, ChannelSMS))
}

func TestBillingFactsFromDeviceWithoutReading(t *testing.T) {
	f := BillingFactsFromDevice(device.Device{ID: "x", Name: "Leo"}, time.Now(), "https://example.com", ChannelSMS)
	assert.Equal(t, "0.00", f.AmountDue)
	assert.Equal(t, "0.00 kWh", f.Usage)
	require.NoError(t, f.Validate())
}

func TestAlertFactsFromDeviceDropsDetailsForOtherTypes(t *testing.T) {
	d := device.Device{ID: "x", Name: "Leo"}
	assert.Empty(t, AlertFactsFromDevice(d, AlertTampering, ChannelEmail, "tomorrow").OutageDetails)
	assert.Equal(t, "tomorrow", AlertFactsFromDevice(d, AlertOutageScheduled, ChannelEmail, "tomorrow").OutageDetails)
}
