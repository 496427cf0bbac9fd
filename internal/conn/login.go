package conn

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/code"
	"github.com/comcore-chat/comcore-server/internal/crypto"
	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

var errNoPendingAccount = errors.New("no pending account for this email")

func (c *Conn) handleLoggedOut(ctx context.Context, kind string, data json.RawMessage) {
	switch kind {
	case "login":
		c.handleLogin(ctx, data)
	case "connect":
		c.handleConnect(ctx, data)
	case "createAccount":
		c.handleCreateAccount(ctx, data)
	case "requestReset":
		c.handleRequestReset(ctx, data)
	case "logout":
		c.reply(map[string]any{}, nil)
	default:
		c.reply(nil, protoerr.Unauthorized("not logged in"))
	}
}

func (c *Conn) handleConfirmEmail(ctx context.Context, kind string, data json.RawMessage) {
	switch kind {
	case "enterCode":
		c.handleEnterCode(ctx, data)
	default:
		c.reply(nil, protoerr.Unauthorized("a confirmation code is pending"))
	}
}

func (c *Conn) handleResetPassword(ctx context.Context, kind string, data json.RawMessage) {
	switch kind {
	case "finishReset":
		c.handleFinishReset(ctx, data)
	default:
		c.reply(nil, protoerr.Unauthorized("a password reset is pending"))
	}
}

func (c *Conn) handleLogin(ctx context.Context, data json.RawMessage) {
	var req struct {
		Email string `json:"email"`
		Pass  string `json:"pass"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed login request"))
		return
	}

	pending := c.deps.Codes.ContinueCreation(req.Email, func(storedHash string) bool {
		return c.deps.Hasher.CheckPassword(req.Pass, storedHash)
	})
	if pending {
		c.setState(confirmEmailState(req.Email, code.KindNewAccount))
		c.reply(map[string]any{"status": wire.StatusEnterCode}, nil)
		return
	}

	acc, err := c.deps.Store.LookupAccount(ctx, req.Email)
	if err == store.ErrNotFound {
		c.reply(map[string]any{"status": wire.StatusDoesNotExist}, nil)
		return
	}
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if !c.deps.Hasher.CheckPassword(req.Pass, acc.PasswordHash) {
		c.reply(map[string]any{"status": wire.StatusInvalidPass}, nil)
		return
	}

	if !acc.TwoFactorEnabled {
		token, err := crypto.RandomToken()
		if err != nil {
			c.reply(nil, protoerr.Internal(err))
			return
		}
		if err := c.deps.Store.SetAuthToken(ctx, acc.ID, token); err != nil {
			c.reply(nil, protoerr.Internal(err))
			return
		}
		c.reply(map[string]any{"status": wire.StatusSuccess}, nil)
		c.enterLoggedIn(acc.ID, acc.Name, token)
		return
	}

	if err := c.deps.Codes.SendConfirmation(req.Email, code.KindTwoFactor, map[string]any{
		"userId": acc.ID.String(), "name": acc.Name,
	}); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.setState(confirmEmailState(req.Email, code.KindTwoFactor))
	c.reply(map[string]any{"status": wire.StatusEnterCode}, nil)
}

func (c *Conn) handleConnect(ctx context.Context, data json.RawMessage) {
	var req struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed connect request"))
		return
	}
	userID, err := uuid.Parse(req.ID)
	if err != nil {
		c.reply(map[string]any{"status": wire.StatusDoesNotExist}, nil)
		return
	}

	storedToken, err := c.deps.Store.GetAuthToken(ctx, userID)
	if err != nil || storedToken == "" || storedToken != req.Token {
		c.send(wire.Reply{Kind: wire.EventLogout, Data: map[string]any{}})
		c.reply(map[string]any{"status": wire.StatusDoesNotExist}, nil)
		return
	}

	acc, err := c.deps.Store.GetAccount(ctx, userID)
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.reply(map[string]any{"status": wire.StatusSuccess}, nil)
	c.enterLoggedIn(acc.ID, acc.Name, storedToken)
}

func (c *Conn) handleCreateAccount(ctx context.Context, data json.RawMessage) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Pass  string `json:"pass"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed createAccount request"))
		return
	}
	if req.Name == "" || req.Email == "" || req.Pass == "" {
		c.reply(nil, protoerr.Request("name, email, and pass are required"))
		return
	}

	if _, err := c.deps.Store.LookupAccount(ctx, req.Email); err == nil {
		c.reply(nil, protoerr.Request("an account with that email already exists"))
		return
	} else if err != store.ErrNotFound {
		c.reply(nil, protoerr.Internal(err))
		return
	}

	hash, err := c.deps.Hasher.HashPassword(req.Pass)
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if err := c.deps.Codes.StartCreation(req.Name, req.Email, hash); err != nil {
		if err == code.ErrAlreadyPending {
			c.reply(nil, protoerr.Request("a confirmation code was already sent to this email"))
			return
		}
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.setState(confirmEmailState(req.Email, code.KindNewAccount))
	c.reply(map[string]any{"created": true}, nil)
}

func (c *Conn) handleRequestReset(ctx context.Context, data json.RawMessage) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed requestReset request"))
		return
	}

	acc, err := c.deps.Store.LookupAccount(ctx, req.Email)
	if err == store.ErrNotFound {
		c.reply(map[string]any{"sent": false}, nil)
		return
	}
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}

	if err := c.deps.Codes.SendConfirmation(req.Email, code.KindResetPassword, map[string]any{
		"userId": acc.ID.String(),
	}); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.setState(confirmEmailState(req.Email, code.KindResetPassword))
	c.reply(map[string]any{"sent": true}, nil)
}

func (c *Conn) handleEnterCode(ctx context.Context, data json.RawMessage) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed enterCode request"))
		return
	}

	st := c.getState()
	result, ok := c.deps.Codes.CheckCode(st.email, st.confirmKind, req.Code)
	if !ok {
		c.reply(map[string]any{"correct": false}, nil)
		return
	}

	switch st.confirmKind {
	case code.KindNewAccount:
		c.finishNewAccount(ctx, st.email)
	case code.KindTwoFactor:
		c.finishTwoFactor(ctx, result)
	case code.KindResetPassword:
		c.finishResetCode(result)
	}
}

func (c *Conn) finishNewAccount(ctx context.Context, email string) {
	pending, ok := c.deps.Codes.FinishCreation(email)
	if !ok {
		c.reply(nil, protoerr.Internal(errNoPendingAccount))
		return
	}
	acc, err := c.deps.Store.CreateAccount(ctx, pending.Name, pending.Email, pending.PasswordHash)
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	token, err := crypto.RandomToken()
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if err := c.deps.Store.SetAuthToken(ctx, acc.ID, token); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.reply(map[string]any{"correct": true}, nil)
	c.enterLoggedIn(acc.ID, acc.Name, token)
}

func (c *Conn) finishTwoFactor(ctx context.Context, data map[string]any) {
	userID, err := uuid.Parse(stringField(data, "userId"))
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	name := stringField(data, "name")
	token, err := crypto.RandomToken()
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if err := c.deps.Store.SetAuthToken(ctx, userID, token); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.reply(map[string]any{"correct": true}, nil)
	c.enterLoggedIn(userID, name, token)
}

func (c *Conn) finishResetCode(data map[string]any) {
	userID, err := uuid.Parse(stringField(data, "userId"))
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	c.setState(resetPasswordState(userID))
	c.reply(map[string]any{"correct": true}, nil)
}

func (c *Conn) handleFinishReset(ctx context.Context, data json.RawMessage) {
	var req struct {
		Pass string `json:"pass"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(nil, protoerr.Request("malformed finishReset request"))
		return
	}
	if req.Pass == "" {
		c.reply(nil, protoerr.Request("pass is required"))
		return
	}

	userID := c.getState().userID
	hash, err := c.deps.Hasher.HashPassword(req.Pass)
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if err := c.deps.Store.ResetPassword(ctx, userID, hash); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	token, err := crypto.RandomToken()
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	if err := c.deps.Store.SetAuthToken(ctx, userID, token); err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}
	acc, err := c.deps.Store.GetAccount(ctx, userID)
	if err != nil {
		c.reply(nil, protoerr.Internal(err))
		return
	}

	c.deps.Registry.ForceLogout(userID, c)
	c.reply(map[string]any{"reset": true}, nil)
	c.enterLoggedIn(userID, acc.Name, token)
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
