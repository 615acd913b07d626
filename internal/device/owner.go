package device

import (
	"errors"
	"strings"

	"github.com/example/sems-monitoring/internal/status"
	"github.com/example/sems-monitoring/internal/store"
)

// OwnerInput is what staff enter when creating or editing a device owner.
type OwnerInput struct {
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Address       string            `json:"address"`
	ContactNumber string            `json:"contactNumber"`
	Serial        string            `json:"serial"`
	Payment       status.Payment    `json:"paymentStatus"`
	Status        status.Activation `json:"status"`
	Price         float64           `json:"price"`
	Outage        string            `json:"outage"`
}

var ErrInvalidOwner = errors.New("invalid owner")

func (in OwnerInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.Join(ErrInvalidOwner, errors.New("name is required"))
	case strings.TrimSpace(in.ContactNumber) == "":
		return errors.Join(ErrInvalidOwner, errors.New("contact number is required"))
	case in.Price < 0:
		return errors.Join(ErrInvalidOwner, errors.New("price must not be negative"))
	}
	if in.Payment != status.Paid && in.Payment != status.Pending {
		return errors.Join(ErrInvalidOwner, errors.New("payment status must be Paid or Pending"))
	}
	if in.Status != status.Activated && in.Status != status.Deactivated {
		return errors.Join(ErrInvalidOwner, errors.New("status must be Activated or Deactivated"))
	}
	return nil
}

// Record encodes the owner in the legacy format. Saving an owner resets the
// meter reading and the tampering flag.
func (in OwnerInput) Record() store.Record {
	return store.Record{
		FieldName:      in.Name,
		FieldEmail:     in.Email,
		FieldAddress:   in.Address,
		FieldContact:   in.ContactNumber,
		FieldSerial:    in.Serial,
		FieldPayment:   status.EncodePayment(in.Payment),
		FieldStatus:    status.EncodeActivation(in.Status),
		FieldPrice:     in.Price,
		FieldOutage:    in.Outage,
		FieldKWH:       0,
		FieldRole:      "User",
		FieldTampering: status.EncodeBoolFlag(false),
	}
}
