package session

import (
	"collab-dashboard/internal/channel"
	"collab-dashboard/internal/message"
	"collab-dashboard/internal/presence"
	"collab-dashboard/internal/rbac"
)

// View is one open document view. It owns its channel for as long as it is
// mounted; nothing else shares the connection.
type View struct {
	identity rbac.Identity
	channel  *channel.Manager
	presence *presence.Tracker
	state    *State
	options
}

func NewView(identity rbac.Identity, ch *channel.Manager, saver Saver, opts ...Option) *View {
	o := buildOptions(opts)
	return &View{
		identity: identity,
		channel:  ch,
		presence: presence.New(identity.User),
		state:    NewState(identity, ch, saver, opts...),
		options:  o,
	}
}

// Mount opens the live channel. Calling it again while the channel is
// connecting or open does nothing.
func (v *View) Mount() error {
	return v.channel.Open(v.identity, v.dispatch)
}

// Unmount detaches the handlers and closes the channel. A pending reconnect
// is cancelled.
func (v *View) Unmount() {
	v.channel.Close()
}

func (v *View) dispatch(msg message.Message) {
	switch m := msg.(type) {
	case message.Init:
		v.state.Apply(m)
		v.presence.Apply(m)
	case message.Update:
		v.state.Apply(m)
	case message.Presence:
		v.presence.Apply(m)
	default:
		v.logger.Debug("ignoring message", "type", msg.Type())
		return
	}
	if v.onChange != nil {
		v.onChange(msg)
	}
}

func (v *View) State() *State {
	return v.state
}

func (v *View) Presence() *presence.Tracker {
	return v.presence
}

func (v *View) ChannelState() channel.State {
	return v.channel.State()
}
