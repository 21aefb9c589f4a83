package wsapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/gallery"
	"github.com/ysrdora/nextframe/internal/player"
	"github.com/ysrdora/nextframe/internal/timecode"
	"github.com/ysrdora/nextframe/internal/usecase"
)

// frameView is a gallery item as sent to clients.
type frameView struct {
	ID         string    `json:"id"`
	DataURL    string    `json:"dataUrl"`
	Filename   string    `json:"filename"`
	Timestamp  float64   `json:"timestamp"`
	Timecode   string    `json:"timecode"`
	CapturedAt time.Time `json:"capturedAt"`
}

func viewOf(it gallery.Item) frameView {
	return frameView{
		ID:         it.ID.String(),
		DataURL:    it.Frame.DataURL,
		Filename:   it.Frame.Filename,
		Timestamp:  it.Frame.Timestamp,
		Timecode:   timecode.Format(it.Frame.Timestamp),
		CapturedAt: it.CapturedAt,
	}
}

func viewsOf(items []gallery.Item) []frameView {
	out := make([]frameView, len(items))
	for i, it := range items {
		out[i] = viewOf(it)
	}
	return out
}

type sessionView struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	State  player.State `json:"state"`
	Frames []frameView  `json:"frames"`
}

func sessionViewOf(sess *usecase.Session) sessionView {
	return sessionView{
		ID:     sess.ID(),
		Name:   sess.Name(),
		State:  sess.State(),
		Frames: viewsOf(sess.Gallery().Items()),
	}
}

// lookup resolves the :id parameter, answering 404 itself when unknown.
func (s *Server) lookup(c *gin.Context) (*entry, bool) {
	e, ok := s.sessions.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return e, ok
}

// handleCreateSession accepts a multipart "video" upload. An optional
// "session_id" field resumes a previous session and restores its stored
// frames.
func (s *Server) handleCreateSession(c *gin.Context) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}

	file, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "video too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing video file"})
		return
	}

	id := uuid.NewString()
	resume := c.PostForm("session_id")
	if resume != "" {
		if _, err := uuid.Parse(resume); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		if _, active := s.sessions.get(resume); active {
			c.JSON(http.StatusConflict, gin.H{"error": "session already open"})
			return
		}
		id = resume
	}

	if err := os.MkdirAll(s.cfg.TempDir, 0755); err != nil {
		s.logger.Error("failed to create temp dir", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store upload"})
		return
	}
	videoPath := filepath.Join(s.cfg.TempDir, id+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, videoPath); err != nil {
		s.logger.Error("failed to save upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store upload"})
		return
	}

	log := s.logger.With(zap.String("session_id", id))
	sess := usecase.NewSession(id, s.factory, s.store, log)
	sess.Open(videoPath, file.Filename)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.LoadTimeout)
	defer cancel()
	if err := sess.WaitLoaded(ctx); err != nil {
		log.Warn("uploaded video could not be loaded", zap.String("filename", file.Filename), zap.Error(err))
		sess.Close()
		_ = os.Remove(videoPath)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "video could not be loaded"})
		return
	}

	if resume != "" {
		n, err := sess.Restore(c.Request.Context())
		if err != nil {
			log.Error("failed to restore frames", zap.Error(err))
		} else {
			log.Info("session resumed", zap.Int("frames", n))
		}
	}

	s.sessions.add(sess, videoPath)
	log.Info("session opened", zap.String("filename", file.Filename), zap.Int64("size", file.Size))
	c.JSON(http.StatusCreated, sessionViewOf(sess))
}

func (s *Server) handleGetSession(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionViewOf(e.session))
}

// handleDeleteSession ends a session. With ?purge=true its stored frames
// are deleted too.
func (s *Server) handleDeleteSession(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	if c.Query("purge") == "true" {
		e.session.ClearFrames(c.Request.Context())
	}
	s.sessions.remove(e.session.ID())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportBundle(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	if e.session.Gallery().Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frames captured"})
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+export.BundleFilename(e.session.Name())+`"`)
	c.Status(http.StatusOK)
	if err := e.session.WriteBundle(c.Request.Context(), c.Writer); err != nil {
		s.logger.Error("failed to write bundle", zap.String("session_id", e.session.ID()), zap.Error(err))
	}
}

func (s *Server) handleContactSheet(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	if e.session.Gallery().Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frames captured"})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", `attachment; filename="`+export.ContactSheetFilename(e.session.Name())+`"`)
	}
	c.Status(http.StatusOK)
	if err := e.session.WriteContactSheet(c.Writer); err != nil {
		s.logger.Error("failed to write contact sheet", zap.String("session_id", e.session.ID()), zap.Error(err))
	}
}

func (s *Server) handleDeleteFrame(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("frameId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid frame id"})
		return
	}
	if !e.session.RemoveFrame(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "frame not found"})
		return
	}
	e.broadcast(framesMessage(e.session))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearFrames(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	e.session.ClearFrames(c.Request.Context())
	e.broadcast(framesMessage(e.session))
	c.Status(http.StatusNoContent)
}
