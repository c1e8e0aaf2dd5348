package http

import (
	nethttp "net/http"
	"strconv"

	"github.com/mind-engage/quizdesk/internal/audit"
)

// GET /audit?key=result:<id>&after=<seq>&limit=100  (admin)
func ListAuditHandler(log *audit.Log) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		list, err := log.List(r.Context(), audit.Filter{
			Key:   r.URL.Query().Get("key"),
			After: after,
			Limit: queryInt(r, "limit", 100, 500),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, list)
	}
}
