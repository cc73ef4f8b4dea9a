package http

import (
	stdhttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/huddlechat/huddle-server/internal/core"
	"github.com/huddlechat/huddle-server/internal/store"
)

func healthHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
	}
}

func roomsHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := st.Rooms(c.Request.Context())
		if err != nil {
			c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
			return
		}
		if active, err := st.ActiveRooms(c.Request.Context(), 100); err == nil {
			rooms = store.OrderByActivity(rooms, active)
		}
		c.JSON(stdhttp.StatusOK, gin.H{"rooms": rooms})
	}
}

func callsHandler(callLog store.CallLogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := core.NormalizeIdentity(c.Query("user"))
		if user == "" {
			c.JSON(stdhttp.StatusBadRequest, gin.H{"error": "user query parameter is required"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		records, err := callLog.RecentCalls(c.Request.Context(), user, limit)
		if err != nil {
			c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "failed to load call history"})
			return
		}
		if records == nil {
			records = []store.CallRecord{}
		}
		c.JSON(stdhttp.StatusOK, gin.H{"calls": records})
	}
}
