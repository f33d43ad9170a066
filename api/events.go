package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/fyd-app/go-fyd-client/events"
)

// EventsService talks to the events endpoints.
type EventsService struct {
	client *Client
}

func NewEventsService(client *Client) *EventsService {
	return &EventsService{client: client}
}

// The events API speaks French on the wire.
type fetchEventsRequest struct {
	City      string   `json:"ville"`
	Interests []string `json:"interet"`
}

type eventsEnvelope struct {
	Success bool           `json:"success"`
	Data    []events.Event `json:"data"`
	Message string         `json:"message"`
}

// Fetch returns the events matching a city and interest list.
func (s *EventsService) Fetch(ctx context.Context, city string, interests []string) ([]events.Event, error) {
	var env eventsEnvelope
	err := s.client.Do(ctx, http.MethodPost, "/events/fetch", fetchEventsRequest{City: city, Interests: interests}, &env)
	if err != nil {
		return nil, errors.WithMessage(err, "[EventsService.Fetch]")
	}
	if !env.Success {
		return nil, errors.WithStack(&Error{Message: serverMessage(env.Message)})
	}
	return env.Data, nil
}

// UserEvents returns the events the user saved to their personal list.
func (s *EventsService) UserEvents(ctx context.Context, userID string) ([]events.Event, error) {
	var env eventsEnvelope
	err := s.client.Do(ctx, http.MethodGet, "/events/user/"+url.PathEscape(userID), nil, &env)
	if err != nil {
		return nil, errors.WithMessage(err, "[EventsService.UserEvents]")
	}
	if !env.Success {
		return nil, errors.WithStack(&Error{Message: serverMessage(env.Message)})
	}
	return env.Data, nil
}

// DeleteUserEvent removes one saved event from the user's personal list.
func (s *EventsService) DeleteUserEvent(ctx context.Context, userID, eventID string) error {
	path := fmt.Sprintf("/events/user/%s/event/%s", url.PathEscape(userID), url.PathEscape(eventID))
	var env statusEnvelope
	if err := s.client.Do(ctx, http.MethodDelete, path, nil, &env); err != nil {
		return errors.WithMessage(err, "[EventsService.DeleteUserEvent]")
	}
	if !env.Success {
		return errors.WithStack(&Error{Message: serverMessage(env.Message)})
	}
	return nil
}

func serverMessage(message string) string {
	if message == "" {
		return "server rejected the request"
	}
	return message
}
