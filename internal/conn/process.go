package conn

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/dispatch"
	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

// isLogoutFirst is the set of request kinds that force the logout transition before they are handled, regardless of
// the connection's current state.
func isLogoutFirst(kind string) bool {
	switch kind {
	case "login", "createAccount", "requestReset", "logout":
		return true
	default:
		return false
	}
}

// process handles exactly one raw request line: parse, route, reply. It is only ever called from handlerLoop, so at
// most one request is in flight per connection.
func (c *Conn) process(ctx context.Context, line string) {
	var frame wire.Frame
	if err := json.Unmarshal([]byte(line), &frame); err != nil || frame.Kind == "" {
		c.send(wire.NewError("malformed request"))
		return
	}

	switch frame.Kind {
	case "PING":
		c.send(wire.NewReply(json.RawMessage(frame.Data)))
		return
	case "checkInviteLink":
		result, err := c.deps.Dispatcher.CheckInviteLink(ctx, frame.Data)
		c.reply(result, err)
		return
	}

	if isLogoutFirst(frame.Kind) {
		c.forceLocalLogout()
	}

	switch c.getState().kind {
	case stateLoggedOut:
		c.handleLoggedOut(ctx, frame.Kind, frame.Data)
	case stateConfirmEmail:
		c.handleConfirmEmail(ctx, frame.Kind, frame.Data)
	case stateResetPassword:
		c.handleResetPassword(ctx, frame.Kind, frame.Data)
	case stateLoggedIn:
		c.handleLoggedIn(ctx, frame.Kind, frame.Data)
	}
}

// reply sends exactly one REPLY or ERROR frame for the request just handled. If err is an UnauthorizedError, the
// connection is forced back to LoggedOut and sent a logout push after the reply.
func (c *Conn) reply(result any, err error) {
	if err != nil {
		c.send(wire.NewError(protoerr.ClientMessage(err)))
		if protoerr.IsUnauthorized(err) {
			c.forceLocalLogout()
			c.send(wire.Reply{Kind: wire.EventLogout, Data: map[string]any{}})
		}
		return
	}
	c.send(wire.NewReply(result))
}

// forceLocalLogout transitions this connection back to LoggedOut, deregistering it from the Session registry if it
// was logged in, without notifying any other connection.
func (c *Conn) forceLocalLogout() {
	c.mu.Lock()
	st := c.state
	wasLoggedIn := st.kind == stateLoggedIn
	c.state = loggedOutState()
	c.mu.Unlock()
	if wasLoggedIn {
		c.deps.Registry.Logout(st.userID, c)
	}
}

// enterLoggedIn applies the LoggedIn entry side effects: registers this connection in the session registry and
// pushes a "login" event to itself.
func (c *Conn) enterLoggedIn(userID uuid.UUID, name, token string) {
	c.setState(loggedInState(userID, name, token))
	c.deps.Registry.Login(userID, c)
	c.send(wire.Reply{Kind: wire.EventLogin, Data: map[string]any{"id": userID, "name": name, "token": token}})
}

// handleLoggedIn dispatches an authenticated request and delivers any resulting pushes.
func (c *Conn) handleLoggedIn(ctx context.Context, kind string, data json.RawMessage) {
	result, pushes, err := c.deps.Dispatcher.Handle(ctx, c.getState().userID, kind, data)
	c.reply(result, err)
	for _, p := range pushes {
		c.deliverPush(ctx, p)
	}
}

func (c *Conn) deliverPush(ctx context.Context, p dispatch.Push) {
	if p.GroupID != uuid.Nil {
		members, err := c.deps.Store.GetUsers(ctx, p.GroupID)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to resolve group members for push")
			return
		}
		ids := make([]uuid.UUID, len(members))
		for i, m := range members {
			ids[i] = m.UserID
		}
		c.deps.Registry.ForwardMany(ids, p.Kind, p.Data, c)
		return
	}
	c.deps.Registry.Forward(p.UserID, p.Kind, p.Data, c)
}
