package handlers

import (
	"context"
	"net/http"
	"strconv"

	"SCProject/logger"
	midsec "SCProject/middleware/security"
	chatstore "SCProject/module/chat/service"
	"SCProject/service/chat"
	errs "SCProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// FileRemover deletes the stored file behind an attachment reference.
type FileRemover interface {
	Remove(ref string) error
}

// Messages serves the request/response side of the chat protocol:
// history, deletion, read-marking. Live fan-out goes through the server's
// registries.
type Messages struct {
	Store chatstore.MessageStore
	Srv   *chat.Server
	Files FileRemover
}

func NewMessages(store chatstore.MessageStore, srv *chat.Server, files FileRemover) *Messages {
	return &Messages{Store: store, Srv: srv, Files: files}
}

// History handles GET /api/messages/:peer?offset=&limit=. Messages the
// caller soft-deleted never show up, at any page.
func (h *Messages) History(c *gin.Context) {
	uid := midsec.UserID(c)
	peer, err := strconv.ParseInt(c.Param("peer"), 10, 64)
	if err != nil || peer <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid peer id"))
		return
	}
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)

	msgs, err := h.Store.History(c.Request.Context(), uid, peer, offset, limit)
	if err != nil {
		respondCodeError(c, err)
		return
	}

	out := make([]chat.Delivery, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chat.DeliveryFromModel(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out, "count": len(out)})
}

// Delete handles DELETE /api/messages/:id. The sender hard-deletes the
// row and its attachment for everyone; the receiver only hides it from
// themselves. Anyone else is rejected.
func (h *Messages) Delete(c *gin.Context) {
	uid := midsec.UserID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid message id"))
		return
	}

	if err := h.deleteOne(c.Request.Context(), uid, id); err != nil {
		respondCodeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "message_id": id})
}

type bulkDeleteRequest struct {
	MessageIDs []int64 `json:"message_ids"`
}

// BulkDelete handles POST /api/messages/delete: the per-message rule
// applied across the set, continuing past individual failures.
func (h *Messages) BulkDelete(c *gin.Context) {
	uid := midsec.UserID(c)
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MessageIDs) == 0 {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("missing message_ids"))
		return
	}

	type result struct {
		MessageID int64  `json:"message_id"`
		Deleted   bool   `json:"deleted"`
		Error     string `json:"error,omitempty"`
	}
	results := make([]result, 0, len(req.MessageIDs))
	for _, id := range req.MessageIDs {
		if err := h.deleteOne(c.Request.Context(), uid, id); err != nil {
			results = append(results, result{MessageID: id, Error: errs.Code(err).Msg})
			continue
		}
		results = append(results, result{MessageID: id, Deleted: true})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Messages) deleteOne(ctx context.Context, uid, id int64) error {
	m, err := h.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !m.PartyOf(uid) {
		return errs.ErrForbidden
	}

	if uid == m.SenderID {
		// delete-for-all: row and attachment go away
		if err := h.Store.HardDelete(ctx, id); err != nil {
			return err
		}
		if m.AttachmentURL != "" && h.Files != nil {
			if err := h.Files.Remove(m.AttachmentURL); err != nil {
				logger.Warnf("[messages] attachment remove id=%d err=%v", id, err)
			}
		}
		event := chat.MessageDeletedEvent{
			Type:          "message_deleted",
			MessageID:     id,
			SenderID:      m.SenderID,
			ReceiverID:    m.ReceiverID,
			DeletedForAll: true,
		}
		h.Srv.ChatRegistry().Send(m.SenderID, event)
		h.Srv.ChatRegistry().Send(m.ReceiverID, event)
		return nil
	}

	// delete-for-me: the row persists for the sender
	if err := h.Store.MarkDeletedForReceiver(ctx, id); err != nil {
		return err
	}
	h.Srv.ChatRegistry().Send(uid, chat.MessageDeletedEvent{
		Type:          "message_deleted",
		MessageID:     id,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		DeletedForAll: false,
	})
	return nil
}

// MarkRead handles POST /api/messages/read/:peer: flags peer->caller
// messages read and tells the peer's devices.
func (h *Messages) MarkRead(c *gin.Context) {
	uid := midsec.UserID(c)
	peer, err := strconv.ParseInt(c.Param("peer"), 10, 64)
	if err != nil || peer <= 0 {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid peer id"))
		return
	}

	n, err := h.Store.MarkRead(c.Request.Context(), uid, peer)
	if err != nil {
		respondCodeError(c, err)
		return
	}
	if n > 0 {
		h.Srv.NotifyRegistry().Send(peer, chat.MessagesReadEvent{Type: "messages_read", FromUserID: uid})
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func respondCodeError(c *gin.Context, err error) {
	ce := errs.Code(err)
	status := http.StatusInternalServerError
	switch ce.Code {
	case errs.UnauthorizedError:
		status = http.StatusUnauthorized
	case errs.ForbiddenError:
		status = http.StatusForbidden
	case errs.NotFoundError:
		status = http.StatusNotFound
	case errs.BadRequestError:
		status = http.StatusBadRequest
	}
	c.JSON(status, ce)
}
