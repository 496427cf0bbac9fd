// Package webui serves the small static HTTP surface that sits alongside the TLS protocol listener: a landing page,
// an invite-link preview page, a stylesheet, and uploaded file downloads. None of it is part of the authenticated
// protocol; it exists so an invite link or an uploaded file shared outside the app still resolves to something.
package webui

import (
	"bytes"
	"errors"
	"html/template"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/store"
)

// Handler wires the Store and upload directory into the page handlers.
type Handler struct {
	store       store.Store
	serverName  string
	uploadDir   string
	gracePeriod time.Duration
	log         zerolog.Logger

	indexTmpl *template.Template
	joinTmpl  *template.Template
}

// New creates a Handler.
func New(s store.Store, serverName, uploadDir string, gracePeriod time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		store:       s,
		serverName:  serverName,
		uploadDir:   uploadDir,
		gracePeriod: gracePeriod,
		log:         logger.With().Str("component", "webui").Logger(),
		indexTmpl:   template.Must(template.New("index").Parse(indexHTML)),
		joinTmpl:    template.Must(template.New("join").Parse(joinHTML)),
	}
}

// Register mounts the static site's routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/", h.index)
	app.Get("/join", h.join)
	app.Get("/style.css", h.stylesheet)
	app.Get("/uploads/:link", h.download)
}

type indexData struct {
	ServerName string
}

func (h *Handler) index(c fiber.Ctx) error {
	return h.render(c, fiber.StatusOK, h.indexTmpl, indexData{ServerName: h.serverName})
}

type joinData struct {
	ServerName string
	Valid      bool
	GroupName  string
	Code       string
	Message    string
}

// join renders a human-readable preview of an invite link (?code=...) shared outside the app. It never joins the
// group itself — that only happens over the protocol via useInviteLink — it just tells the visitor what they were
// invited to and that they need the app to accept.
func (h *Handler) join(c fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return h.render(c, fiber.StatusBadRequest, h.joinTmpl, joinData{
			ServerName: h.serverName,
			Message:    "No invite code was provided.",
		})
	}

	link, err := h.store.CheckInviteCode(c.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return h.render(c, fiber.StatusNotFound, h.joinTmpl, joinData{
				ServerName: h.serverName,
				Code:       code,
				Message:    "This invite link does not exist or has already been used up.",
			})
		}
		h.log.Error().Err(err).Msg("failed to look up invite code")
		return h.render(c, fiber.StatusInternalServerError, h.joinTmpl, joinData{
			ServerName: h.serverName,
			Message:    "Something went wrong looking up this invite link.",
		})
	}

	expired := link.ExpireAt != 0 && time.Now().UnixMilli() > link.ExpireAt+h.gracePeriod.Milliseconds()
	if expired {
		return h.render(c, fiber.StatusGone, h.joinTmpl, joinData{
			ServerName: h.serverName,
			Code:       code,
			Message:    "This invite link has expired.",
		})
	}

	name, err := h.store.GetGroupName(c.Context(), link.GroupID)
	if err != nil {
		name = "a group"
	}

	return h.render(c, fiber.StatusOK, h.joinTmpl, joinData{
		ServerName: h.serverName,
		Valid:      true,
		GroupName:  name,
		Code:       code,
	})
}

func (h *Handler) render(c fiber.Ctx, status int, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.log.Error().Err(err).Msg("failed to render page template")
		return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
	}
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Status(status).Send(buf.Bytes())
}

func (h *Handler) stylesheet(c fiber.Ctx) error {
	c.Set("Content-Type", "text/css; charset=utf-8")
	return c.SendString(stylesheetCSS)
}

// download serves a previously uploaded file by its opaque link name. The link itself (a uuid plus the sanitized
// original filename) is the only credential; there is no per-file access control beyond knowing it.
func (h *Handler) download(c fiber.Ctx) error {
	link, err := url.PathUnescape(c.Params("link"))
	if err != nil || link == "" || link != filepath.Base(link) {
		return c.Status(fiber.StatusBadRequest).SendString("invalid file link")
	}
	path := filepath.Join(h.uploadDir, link)
	return c.SendFile(path)
}
