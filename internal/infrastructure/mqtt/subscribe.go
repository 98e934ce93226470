package mqtt

import (
	"fmt"
	"slices"
	"strings"
)

// ValidFilter reports whether filter is a well-formed subscription filter:
// "+" must fill a whole level and "#" may only appear as the last level.
func ValidFilter(filter string) bool {
	if filter == "" {
		return false
	}
	levels := strings.Split(filter, "/")
	for i, l := range levels {
		switch {
		case l == "#":
			if i != len(levels)-1 {
				return false
			}
		case l == "+":
		case strings.ContainsAny(l, "+#"):
			return false
		}
	}
	return true
}

// Subscribe delivers messages matching filter to handler.
//
// Handlers run on the paho delivery goroutine, so callers that own
// single-threaded state queue the message and process it in their loop.
// The subscription is kept and restored after every reconnect.
//
// Parameters:
//   - filter: Topic or wildcard filter, e.g. "/espconsole/kitchen/+/cmd"
//   - qos: Maximum QoS of delivered messages
//   - handler: Called once per message; a returned error is logged
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or ErrSubscribeFailed wrapping the cause
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if !ValidFilter(filter) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, filter)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		return err
	}
	c.subMu.Lock()
	c.subscriptions[filter] = subscription{topic: filter, qos: qos, handler: handler}
	c.subMu.Unlock()
	return nil
}

// Unsubscribe drops the subscription for filter. Messages already in
// flight may still reach the old handler.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
	return await(c.client.Unsubscribe(filter), ErrUnsubscribeFailed)
}

// Subscriptions returns the tracked filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	out := make([]string, 0, len(c.subscriptions))
	for f := range c.subscriptions {
		out = append(out, f)
	}
	c.subMu.RUnlock()
	slices.Sort(out)
	return out
}
