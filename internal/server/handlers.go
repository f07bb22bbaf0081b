package server

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"vault-go/internal/vault"
)

type uploadResponse struct {
	Path  string       `json:"path"`
	Size  int64        `json:"size"`
	Hash  string       `json:"hash"`
	Usage *vault.Usage `json:"usage"`
}

type fileResponse struct {
	ID         int64  `json:"id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Hash       string `json:"hash,omitempty"`
	State      string `json:"state"`
	UploadedAt string `json:"uploaded_at"`
	DeletedAt  string `json:"deleted_at,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// GET /v1/usage
func (s *Server) getUsage(c *gin.Context) {
	accountID, ok := s.requireAccount(c)
	if !ok {
		return
	}
	u, err := s.manager.GetUsage(accountID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GET /v1/files[?all=true]
func (s *Server) listFiles(c *gin.Context) {
	accountID, ok := s.requireAccount(c)
	if !ok {
		return
	}
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))

	files, err := s.manager.Tracker().Files(accountID, all)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := make([]fileResponse, len(files))
	for i, f := range files {
		resp[i] = fileResponse{
			ID:         f.ID,
			Path:       f.Path,
			Size:       f.Size,
			Hash:       f.Hash.String,
			State:      string(f.State),
			UploadedAt: f.UploadedAt.UTC().Format(timeFormat),
		}
		if f.DeletedAt.Valid {
			resp[i].DeletedAt = f.DeletedAt.Time.UTC().Format(timeFormat)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// POST /v1/files
// Multipart field "file"; form field "path" defaults to the uploaded file name.
func (s *Server) uploadFile(c *gin.Context) {
	accountID, ok := s.requireAccount(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "multipart field \"file\" is required")
		return
	}

	rel, err := vault.CleanRelPath(c.DefaultPostForm("path", fh.Filename))
	if err != nil {
		s.writeError(c, err)
		return
	}
	storagePath, err := s.manager.StoragePath(accountID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	dst := filepath.Join(storagePath, filepath.FromSlash(rel))
	if err := s.fsmgr.MkdirAll(filepath.Dir(dst)); err != nil {
		s.writeError(c, err)
		return
	}

	// Only the request that created dst may remove it below.
	if err := s.saveExclusive(fh, dst); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			c.JSON(http.StatusConflict, gin.H{"error": "File exists", "message": rel + " already exists"})
			return
		}
		s.writeError(c, err)
		return
	}

	hash, err := s.manager.CalculateHash(dst)
	if err == nil {
		err = s.manager.TrackUpload(accountID, rel, fh.Size, hash)
	}
	if err != nil {
		if rmErr := s.fsmgr.Remove(dst); rmErr != nil {
			s.logger.Warn("removing rejected upload", "path", dst, "error", rmErr)
		}
		s.writeError(c, err)
		return
	}

	u, err := s.manager.GetUsage(accountID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, uploadResponse{Path: rel, Size: fh.Size, Hash: hash, Usage: u})
}

// saveExclusive copies the uploaded file to dst, which must not exist yet.
// A partially written dst is removed.
func (s *Server) saveExclusive(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	out, err := s.fsmgr.CreateExclusive(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := s.fsmgr.Remove(dst); rmErr != nil {
			s.logger.Warn("removing partial upload", "path", dst, "error", rmErr)
		}
		return fmt.Errorf("writing upload: %w", err)
	}
	return nil
}

// DELETE /v1/files?path=
func (s *Server) deleteFile(c *gin.Context) {
	accountID, ok := s.requireAccount(c)
	if !ok {
		return
	}
	rel, err := vault.CleanRelPath(c.Query("path"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	storagePath, err := s.manager.StoragePath(accountID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.fsmgr.Remove(filepath.Join(storagePath, filepath.FromSlash(rel))); err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.manager.TrackDeletion(accountID, rel); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requireAccount(c *gin.Context) (string, bool) {
	accountID := s.accountID(c)
	if accountID == "" {
		s.badRequest(c, "missing "+s.policy.AccountHeader+" header")
		return "", false
	}
	return accountID, true
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Bad request", "message": message})
}

// writeError maps domain error kinds to status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status, title := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": title, "message": err.Error()})
}

// StatusFor returns the HTTP status and short title for an error.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, vault.ErrQuotaExceeded):
		return http.StatusRequestEntityTooLarge, "Storage quota exceeded"
	case errors.Is(err, vault.ErrStorageNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, vault.ErrInvalidArgument), errors.Is(err, vault.ErrInvalidQuota):
		return http.StatusBadRequest, "Bad request"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
