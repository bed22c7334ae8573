package handler

import (
	"blindchat/backend/internal/models"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultOpenSessions = 20

// Candidates lists users sharing an interest with the caller. The
// "interests" query overrides the caller's own interests and "exclude"
// drops already-shown users; both are comma separated.
func (h *Handler) Candidates(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	interests := splitList(c.Query("interests"))
	if len(interests) == 0 {
		me, err := h.Store.GetUser(ctx, userID)
		if err != nil {
			h.fail(c, err)
			return
		}
		interests = me.InterestNames()
	}

	users, err := h.Matcher.FindCandidates(ctx, userID, interests, splitList(c.Query("exclude")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// OpenSessions lists waiting sessions the caller could join.
func (h *Handler) OpenSessions(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	limit := defaultOpenSessions
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	sessions, err := h.Matcher.OpenSessions(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.SessionID)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

// blindThread is every stored message one anonymous sender addressed to
// the caller in a single session. The sender is identified only by ChatID.
type blindThread struct {
	ChatID   string    `json:"chat_id"`
	Texts    []string  `json:"texts"`
	Images   []string  `json:"images,omitempty"`
	LatestAt time.Time `json:"latest_at"`
}

// groupBlind folds newest-first messages into threads, newest thread first,
// each holding its contents oldest first.
func groupBlind(msgs []models.Message) []blindThread {
	threads := []blindThread{}
	index := make(map[string]int)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		at, ok := index[m.ChannelID]
		if !ok {
			at = len(threads)
			index[m.ChannelID] = at
			threads = append(threads, blindThread{ChatID: m.ChannelID, Texts: []string{}})
		}
		t := &threads[at]
		if m.Text != "" {
			t.Texts = append(t.Texts, m.Text)
		}
		if m.ImageRef != "" {
			t.Images = append(t.Images, m.ImageRef)
		}
		t.LatestAt = m.CreatedAt
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LatestAt.After(threads[j].LatestAt)
	})
	return threads
}

// ReceivedBlind lists blind messages addressed to the caller that are
// still stored, grouped per sender.
func (h *Handler) ReceivedBlind(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}
	msgs, err := h.Store.ListReceivedBlindMessages(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": groupBlind(msgs)})
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
