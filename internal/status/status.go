// Package status reduces the loosely typed status fields stored on device
// records to canonical values.
//
// Records written by the meters and by older dashboard builds encode flags as
// booleans, plain strings or strings with a trailing colon ("true:",
// "activated:"). Every function here is total: any input, including nil,
// maps to a defined value.
package status

import (
	"fmt"
	"strings"
)

type Activation string

const (
	Activated   Activation = "Activated"
	Deactivated Activation = "Deactivated"
	Unknown     Activation = "Unknown"
)

type Payment string

const (
	Paid    Payment = "Paid"
	Pending Payment = "Pending"
)

// clean lower-cases raw, trims it and drops one trailing colon.
func clean(raw any) string {
	var s string
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		s = v
	case bool:
		if v {
			s = "true"
		} else {
			s = "false"
		}
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

func NormalizeStatus(raw any) Activation {
	switch clean(raw) {
	case "activated":
		return Activated
	case "deactivated":
		return Deactivated
	default:
		return Unknown
	}
}

// NormalizeBoolFlag is used for both the tampering and the OUTAGE fields.
func NormalizeBoolFlag(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.HasPrefix(clean(v), "true")
	default:
		return false
	}
}

func NormalizePayment(raw any) Payment {
	if clean(raw) == "true" {
		return Paid
	}
	return Pending
}

// The Encode functions produce the legacy representation the dashboard
// writes back to the store.

func EncodeActivation(a Activation) string {
	if a == Activated {
		return "activated:"
	}
	return "deactivated:"
}

func EncodeBoolFlag(v bool) string {
	if v {
		return "true:"
	}
	return "false:"
}

func EncodePayment(p Payment) string {
	return EncodeBoolFlag(p == Paid)
}
