package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/minio"
	"Courier/internal/pkg/response"
	"Courier/internal/pkg/util"
	"Courier/internal/service"
	log "log/slog"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AttachmentHandler struct {
	store   minio.AttachmentStore
	maxSize int64
}

func NewAttachmentHandler(store minio.AttachmentStore, maxSize int64) *AttachmentHandler {
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &AttachmentHandler{store: store, maxSize: maxSize}
}

// Upload 上传消息附件, 返回可用于 file 或 image 消息的字段
func (s *AttachmentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if file.Size > s.maxSize {
		response.Error(c, service.ErrFileTooLarge)
		return
	}

	reader, err := file.Open()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader)
	if err != nil || !allowedAttachment(contentType) {
		response.Error(c, service.ErrFileNotSupported)
		return
	}

	userID := c.GetString(consts.UserIDKey)
	objectName := userID + "/" + time.Now().UTC().Format("2006/01/02/") + uuid.NewString() + path.Ext(file.Filename)
	key, err := s.store.Upload(c.Request.Context(), objectName, reader, file.Size, contentType)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "attachment upload failed", "user_id", userID, "err", err)
		response.Error(c, service.ErrStoreUnavailable)
		return
	}

	messageType := model.MessageTypeFile
	if strings.HasPrefix(contentType, consts.MimePrefixImage) {
		messageType = model.MessageTypeImage
	}
	log.InfoContext(c.Request.Context(), "attachment uploaded", "user_id", userID, "key", key, "type", contentType)
	response.Success(c, &dto.AttachmentDTO{
		FileURL:     s.store.PublicURL(key),
		FileName:    path.Base(file.Filename),
		FileSize:    file.Size,
		MimeType:    contentType,
		MessageType: messageType,
	})
}

func allowedAttachment(contentType string) bool {
	for _, prefix := range consts.AttachmentMimePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
