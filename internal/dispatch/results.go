package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ResultConsumer feeds worker results from NATS into a dispatcher
type ResultConsumer struct {
	nc         *nats.Conn
	dispatcher *Dispatcher
	log        *logrus.Logger
	sub        *nats.Subscription
}

// NewResultConsumer wires a dispatcher to the results subject
func NewResultConsumer(nc *nats.Conn, dispatcher *Dispatcher, log *logrus.Logger) *ResultConsumer {
	return &ResultConsumer{nc: nc, dispatcher: dispatcher, log: log}
}

// Start subscribes to worker results
func (c *ResultConsumer) Start(ctx context.Context) error {
	sub, err := c.nc.Subscribe(ResultsSubject, func(m *nats.Msg) {
		var res ResultMessage
		if err := json.Unmarshal(m.Data, &res); err != nil {
			c.log.WithError(err).Warn("discarding malformed result message")
			return
		}
		if err := c.dispatcher.HandleResult(ctx, res); err != nil {
			c.log.WithFields(logrus.Fields{
				"entry":  res.EntryID,
				"status": res.Status,
			}).WithError(err).Error("failed to apply worker result")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ResultsSubject, err)
	}
	c.sub = sub
	return nil
}

// Stop unsubscribes from the results subject
func (c *ResultConsumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	c.sub = nil
	return nil
}
