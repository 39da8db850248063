package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var timeZero time.Time

// healthHandler reports whether the lineage store is reachable.
func (s *Server) healthHandler(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "lineage store unreachable: "+err.Error())
		return
	}
	SuccessResponse(c, "ok", gin.H{"status": "healthy"})
}

// getGoldenRecord returns one golden record by id.
func (s *Server) getGoldenRecord(c *gin.Context) {
	id := c.Param("id")
	gr, err := s.store.GetGoldenRecord(c.Request.Context(), id)
	if err != nil {
		NotFoundErrorWithID(c, id)
		return
	}
	SuccessResponse(c, "", gr)
}

// getXref returns the currently open xref for a source record, if any.
func (s *Server) getXref(c *gin.Context) {
	sourceSystem := c.Query("source_system")
	recordID := c.Param("record_id")
	if sourceSystem == "" {
		BadRequestError(c, "source_system query parameter is required")
		return
	}

	xref, err := s.store.OpenXrefFor(c.Request.Context(), recordID, sourceSystem)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	if xref == nil {
		NotFoundErrorWithID(c, recordID)
		return
	}
	SuccessResponse(c, "", xref)
}

// getRelatedEntities returns the xrefs currently valid on the golden
// record a given source record resolves to; it always queries as of now.
func (s *Server) getRelatedEntities(c *gin.Context) {
	recordID := c.Param("record_id")
	related, err := s.store.RelatedEntities(c.Request.Context(), recordID, timeZero)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	SuccessResponse(c, "", related)
}

// metricsHandler returns the last Pipeline run's counters and gauges,
// when the server was wired with a metrics.MemorySink.
func (s *Server) metricsHandler(c *gin.Context) {
	if s.sink == nil {
		SuccessResponse(c, "", gin.H{"counters": gin.H{}, "gauges": gin.H{}})
		return
	}
	counters, gauges := s.sink.Snapshot()
	SuccessResponse(c, "", gin.H{"counters": counters, "gauges": gauges})
}
