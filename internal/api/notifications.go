package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/sems-monitoring/internal/account"
	"github.com/example/sems-monitoring/internal/flow"
	"github.com/example/sems-monitoring/internal/message"
)

type alertRequest struct {
	AlertType     message.AlertType `json:"alertType"`
	Channel       string            `json:"channel"`
	OutageDetails string            `json:"outageDetails"`
}

type billingRequest struct {
	Channel string `json:"channel"`
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
}

type generated struct {
	Success   bool   `json:"success"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	Recipient string `json:"recipient"`
}

func (s *Server) generateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in alertRequest
	if err := decode(w, r, &in); err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	}
	ch, ok := s.channel(w, r, in.Channel)
	if !ok {
		return
	}
	d, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	facts := message.AlertFactsFromDevice(d, in.AlertType, ch, in.OutageDetails)
	s.generate(w, r, flow.KindAlert, ch, message.Recipient(d, ch), func(ctx context.Context) (message.Message, error) {
		return s.engine.GenerateAlert(ctx, facts)
	})
}

func (s *Server) generateBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in billingRequest
	if err := decode(w, r, &in); err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	}
	ch, ok := s.channel(w, r, in.Channel)
	if !ok {
		return
	}
	d, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	facts := message.BillingFactsFromDevice(d, s.now(), s.statementBase, ch)
	s.generate(w, r, flow.KindBilling, ch, message.Recipient(d, ch), func(ctx context.Context) (message.Message, error) {
		return s.engine.GenerateBilling(ctx, facts)
	})
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request, raw string) (message.Channel, bool) {
	ch, err := message.ParseChannel(raw)
	if err != nil {
		s.respondMsg(r.Context(), w, http.StatusBadRequest, "Please choose SMS or Email as the notification method.")
		return "", false
	}
	return ch, true
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind flow.Kind, ch message.Channel, recipient string, gen func(context.Context) (message.Message, error)) {
	ctx, span := s.tracer.Start(r.Context(), "generate_"+string(kind))
	defer span.End()

	f := s.flowFor(r, kind)
	msg, err := f.Generate(ctx, f.Begin(), ch, gen)
	switch {
	case errors.Is(err, message.ErrInvalidFacts):
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	case errors.Is(err, flow.ErrStale):
		s.respondMsg(ctx, w, http.StatusConflict, "A newer message is being generated.")
		return
	case err != nil:
		s.respondErr(ctx, w, http.StatusBadGateway, "Failed to generate message. Please try again.", err)
		return
	}
	writeJSON(w, http.StatusOK, generated{Success: true, Subject: msg.Subject, Body: msg.Body, Recipient: recipient})
}

// send answers 200 with the dispatch result whether or not delivery worked;
// the result carries the outcome.
func (s *Server) send(kind flow.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var in sendRequest
		if err := decode(w, r, &in); err != nil {
			s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
			return
		}
		res := s.flowFor(r, kind).Send(ctx, in.Recipient, in.Channel)
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) flowFor(r *http.Request, kind flow.Kind) *flow.Flow {
	u, _ := account.UserFrom(r.Context())
	return s.flows.Get(u.Email, chi.URLParam(r, "id"), kind)
}
