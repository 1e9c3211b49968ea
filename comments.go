package pixelprompt

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"github.com/eringen/pixelprompt/gallery"
)

const (
	maxCommentLength = 1000
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
)

var commentPolicy = bluemonday.StrictPolicy()

// sanitizeComment strips markup from text and returns the plain text, or ""
// when nothing readable is left. Views escape it on output.
func sanitizeComment(text string) string {
	return strings.TrimSpace(html.UnescapeString(commentPolicy.Sanitize(text)))
}

func (a *App) handleAddComment(c echo.Context) error {
	v, err := a.visitor(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	comment := gallery.Comment{UserID: v.uid(), UserName: v.identity().DisplayName()}
	if a.Config.Hosted() && comment.UserID == "" {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "Sign in to comment.", LoginURL: "/auth/login/"})
	}
	if comment.UserID == "" {
		comment.UserID = "guest:" + v.guestKey()
		comment.UserName = "Guest"
	}
	comment.Text = sanitizeComment(c.FormValue("text"))
	if comment.Text == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Write something first."})
	}
	if utf8.RuneCountInString(comment.Text) > maxCommentLength {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Comment is too long."})
	}
	if _, ok := gallery.DemoItem(id); ok {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Demo images can't be commented on."})
	}
	if _, err := a.Repo.Item(c.Request().Context(), id); err != nil {
		return a.remoteError(c, "comments.item", err)
	}
	commentID, err := a.Repo.AddComment(c.Request().Context(), id, comment)
	if err != nil {
		return a.remoteError(c, "comments.add", err)
	}
	if err := v.save(c); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": commentID})
}

type commentsMessage struct {
	Comments []gallery.Comment `json:"comments"`
	Error    string            `json:"error,omitempty"`
}

func (a *App) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.checkOrigin,
	}
}

// checkOrigin validates the request origin against the allowed origins.
func (a *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(a.Config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range a.Config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// handleCommentsWS streams comment snapshots of one item over a websocket.
// Each connection holds exactly one subscription, closed with the connection.
func (a *App) handleCommentsWS(c echo.Context) error {
	id := c.Param("id")
	conn, err := a.upgrader().Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		a.log.Warn("websocket upgrade failed", "op", "comments.ws", "item", id, "error", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()

	sub, err := a.Repo.SubscribeComments(ctx, id)
	if err != nil {
		_, msg := remoteStatus(err)
		a.log.Error("subscribe comments failed", "op", "comments.subscribe", "item", id, "error", err)
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		conn.WriteJSON(commentsMessage{Error: msg})
		return nil
	}
	defer sub.Close()

	// The reader only watches for the peer going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg := commentsMessage{Comments: gallery.CommentsOf(snap.Docs)}
			if snap.Err != nil {
				a.log.Warn("comment snapshot failed", "op", "comments.snapshot", "item", id, "error", snap.Err)
				msg = commentsMessage{}
				_, msg.Error = remoteStatus(snap.Err)
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
