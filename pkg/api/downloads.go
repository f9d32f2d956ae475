package api

import (
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// download exchanges a signed token for the decrypted object
func (s *Server) download(c *gin.Context) {
	claims, err := s.deps.Downloads.ParseDownloadToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired link"})
		return
	}

	data, info, err := s.deps.Objects.Download(c.Request.Context(), claims.Key)
	if err != nil {
		s.fail(c, err)
		return
	}

	name := claims.Filename
	if name == "" {
		name = path.Base(claims.Key)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, contentType, data)
}
