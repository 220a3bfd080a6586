package dialer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/acme/predictive-dialer/internal/ami"
)

// ManagerSession is the slice of an authenticated AMI session the dialer
// depends on. Narrowed to an interface so call flow is testable without a
// manager socket.
type ManagerSession interface {
	Send(action *ami.Action) (ami.Response, error)
	SendList(action *ami.Action, completeEvent string) (ami.Response, []ami.Response, error)
	Disconnect() error
}

// ChannelVariable is one custom channel variable attached to an origination.
type ChannelVariable struct {
	Key   string
	Value string
}

// OriginateRequest describes one outbound call to place. Channel is caller
// constructed; phone digits must already be normalized.
type OriginateRequest struct {
	Channel   string
	Context   string
	Extension string
	Priority  int
	CallerID  string
	Timeout   time.Duration
	Variables []ChannelVariable
}

// OriginateResult is the immediate manager acknowledgment. Accepted means
// Asterisk took the origination request, not that the far end answered;
// call outcomes surface later through channel state and CDRs.
type OriginateResult struct {
	Accepted bool
	ActionID string
	Message  string
}

// Originate sends an asynchronous Originate action. The request does not
// block on call progress; only the synchronous acknowledgment is read.
func Originate(session ManagerSession, req OriginateRequest) (OriginateResult, error) {
	priority := req.Priority
	if priority <= 0 {
		priority = 1
	}

	action := ami.NewAction("Originate").
		Add("Channel", req.Channel).
		Add("Context", req.Context).
		Add("Exten", req.Extension).
		Add("Priority", strconv.Itoa(priority)).
		Add("Async", "yes")

	if req.Timeout > 0 {
		action.Add("Timeout", strconv.FormatInt(req.Timeout.Milliseconds(), 10))
	}
	if req.CallerID != "" {
		action.Add("CallerID", req.CallerID)
	}
	for _, v := range req.Variables {
		action.Add("Variable", v.Key+"="+v.Value)
	}

	actionID := uuid.New().String()
	action.Add("ActionID", actionID)

	resp, err := session.Send(action)
	if err != nil {
		return OriginateResult{ActionID: actionID}, fmt.Errorf("originate: %w", err)
	}

	return OriginateResult{
		Accepted: resp.IsSuccess(),
		ActionID: actionID,
		Message:  resp.Get("Message"),
	}, nil
}

// Hangup tears down a channel by name.
func Hangup(session ManagerSession, channel string) (bool, error) {
	action := ami.NewAction("Hangup").Add("Channel", channel)
	resp, err := session.Send(action)
	if err != nil {
		return false, fmt.Errorf("hangup: %w", err)
	}
	return resp.IsSuccess(), nil
}

// ActiveChannels lists the channels currently up on the PBX via
// CoreShowChannels. The list arrives as typed events terminated by a
// completion event, so a reformatted or truncated response fails loudly
// instead of shrinking the result.
func ActiveChannels(session ManagerSession) ([]string, error) {
	action := ami.NewAction("CoreShowChannels")
	ack, events, err := session.SendList(action, "CoreShowChannelsComplete")
	if err != nil {
		return nil, fmt.Errorf("active channels: %w", err)
	}
	if !ack.IsSuccess() {
		return nil, fmt.Errorf("active channels: rejected: %s", ack.Get("Message"))
	}

	channels := make([]string, 0, len(events))
	for _, ev := range events {
		if name := ev.Get("Channel"); name != "" {
			channels = append(channels, name)
		}
	}
	return channels, nil
}
