package dto

// AttachmentDTO 附件上传结果, 字段可直接用于 send_message
type AttachmentDTO struct {
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
	MessageType string `json:"message_type"`
}
