// Package notify forwards session state changes to an EventBridge bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Event source and detail type on every entry.
const (
	Source     = "speech-enhancer"
	DetailType = "SessionStateChanged"
)

// PutEventsAPI is the subset of *eventbridge.Client used by Publisher.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// StateChange is the event detail document.
type StateChange struct {
	SessionID    string    `json:"sessionId"`
	State        string    `json:"state"`
	ArtifactName string    `json:"artifactName,omitempty"`
	JobID        string    `json:"jobId,omitempty"`
	Progress     int       `json:"progress"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher sends StateChange events to one bus.
type Publisher struct {
	client  PutEventsAPI
	busName string
}

// NewPublisher creates a Publisher for busName.
func NewPublisher(client PutEventsAPI, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// Publish emits one event. Entry-level failures are reported as errors.
func (p *Publisher) Publish(ctx context.Context, event StateChange) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal StateChange: %w", err)
	}

	input := &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(Source),
				DetailType:   aws.String(DetailType),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(event.Timestamp),
			},
		},
	}

	result, err := p.client.PutEvents(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("sessionId", event.SessionID).Str("state", event.State).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("sessionId", event.SessionID).
					Str("state", event.State).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("sessionId", event.SessionID).Str("state", event.State).Msg("State change emitted to EventBridge")
	return nil
}
