package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"normalize", "activated:"}, "Activated"},
		{[]string{"normalize", " DEACTIVATED "}, "Deactivated"},
		{[]string{"normalize", "weird"}, "Unknown"},
		{[]string{"normalize", "--kind", "flag", "true:"}, "true"},
		{[]string{"normalize", "--kind", "flag", "yes"}, "false"},
		{[]string{"normalize", "--kind", "payment", "true:"}, "Paid"},
	}
	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			out, err := run(t, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, strings.TrimSpace(out))
		})
	}

	_, err := run(t, "normalize", "--kind", "colour", "x")
	assert.Error(t, err)
}

func TestPreviewBillingEmail(t *testing.T) {
	out, err := run(t, "preview", "billing",
		"--name", "Jane", "--meter", "0917", "--amount", "1250.00", "--due", "3/2/2024",
		"--usage", "100.00 kWh", "--link", "https://example.com/billing/0917")
	require.NoError(t, err)
	assert.Equal(t, "Subject: Your Monthly Electricity Bill is Ready\n\nAmount Due: ₱1250.00\nDue Date: 3/2/2024\nUsage: 100.00 kWh\n", out)
}

func TestPreviewAlertSMS(t *testing.T) {
	out, err := run(t, "preview", "alert", "--name", "Jane", "--meter", "0917", "--type", "Tampering", "--channel", "sms")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "SEMS Monitoring URGENT Alert:"))
	assert.NotContains(t, out, "0917")
}

func TestPreviewAlertRejectsMissingDetails(t *testing.T) {
	_, err := run(t, "preview", "alert", "--name", "Jane", "--type", "Outage-Scheduled")
	assert.Error(t, err)
}
