// Package device interprets device records from the store. Raw status fields
// are only ever read through package status.
package device

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/example/sems-monitoring/internal/status"
	"github.com/example/sems-monitoring/internal/store"
)

// Record field names as written by the meters and the dashboard.
const (
	FieldName      = "Name"
	FieldAddress   = "Address"
	FieldEmail     = "Email"
	FieldContact   = "Contact Number"
	FieldSerial    = "Serial"
	FieldPrice     = "Price"
	FieldKWHR      = "kwhr"
	FieldKWH       = "kwh"
	FieldStatus    = "status"
	FieldTampering = "tampering"
	FieldOutage    = "OUTAGE"
	FieldPayment   = "payment"
	FieldRole      = "role"
)

type Device struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Address       string            `json:"address"`
	Email         string            `json:"email"`
	ContactNumber string            `json:"contactNumber"`
	Serial        string            `json:"serial,omitempty"`
	Price         float64           `json:"price"`
	Usage         float64           `json:"usage"`
	Status        status.Activation `json:"status"`
	Tampered      bool              `json:"tampered"`
	Outage        bool              `json:"outage"`
	Payment       status.Payment    `json:"payment"`
}

func FromRecord(id string, rec store.Record) Device {
	rawStatus, ok := rec[FieldStatus]
	if !ok || rawStatus == "" {
		rawStatus = rec["Status"]
	}
	usage, ok := number(rec[FieldKWHR])
	if !ok {
		usage, _ = number(rec[FieldKWH])
	}
	price, _ := number(rec[FieldPrice])
	return Device{
		ID:            id,
		Name:          text(rec[FieldName]),
		Address:       text(rec[FieldAddress]),
		Email:         text(rec[FieldEmail]),
		ContactNumber: text(rec[FieldContact]),
		Serial:        text(rec[FieldSerial]),
		Price:         price,
		Usage:         usage,
		Status:        status.NormalizeStatus(rawStatus),
		Tampered:      status.NormalizeBoolFlag(rec[FieldTampering]),
		Outage:        status.NormalizeBoolFlag(rec[FieldOutage]),
		Payment:       status.NormalizePayment(rec[FieldPayment]),
	}
}

// FromSnapshot returns the devices ordered by id.
func FromSnapshot(snap store.Snapshot) []Device {
	devices := make([]Device, 0, len(snap))
	for _, id := range snap.IDs() {
		devices = append(devices, FromRecord(id, snap[id]))
	}
	return devices
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return strings.Trim(string(b), `"`)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
