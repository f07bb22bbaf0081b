package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// multipartFiles returns the files of a multipart request, or nil for any other request.
// A form that cannot be parsed is left for the handler to report.
func multipartFiles(c *gin.Context) []*multipart.FileHeader {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return nil
	}
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	var files []*multipart.FileHeader
	for _, headers := range form.File {
		files = append(files, headers...)
	}
	return files
}

// uploadPolicy rejects files over the size limit (413) or with a disallowed
// extension (415).
func (s *Server) uploadPolicy() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, fh := range multipartFiles(c) {
			if s.policy.MaxFileSize > 0 && fh.Size > s.policy.MaxFileSize {
				msg := fmt.Sprintf("%s is %s, the limit is %s", fh.Filename,
					humanize.IBytes(uint64(fh.Size)), humanize.IBytes(uint64(s.policy.MaxFileSize)))
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":   "File too large",
					"message": msg,
				})
				return
			}
			if !s.policy.Extensions.Allowed(fh.Filename) {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error":   "File type not allowed",
					"message": fmt.Sprintf("%s has a disallowed extension", fh.Filename),
				})
				return
			}
		}
		c.Next()
	}
}

// quotaCheck turns away uploads that would not fit the account's remaining quota.
// The check is advisory; TrackUpload enforces the quota under lock. Requests
// without files or without an account id pass, as do requests whose usage
// cannot be read.
func (s *Server) quotaCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		files := multipartFiles(c)
		accountID := s.accountID(c)
		if len(files) == 0 || accountID == "" {
			c.Next()
			return
		}

		var total int64
		for _, fh := range files {
			total += fh.Size
		}

		ok, err := s.manager.CanUpload(accountID, total)
		if err != nil {
			s.logger.Warn("quota check failed", "account", accountID, "error", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "Storage quota exceeded",
				"message": fmt.Sprintf("uploading %s would exceed the storage quota", humanize.IBytes(uint64(total))),
			})
			return
		}
		c.Next()
	}
}
