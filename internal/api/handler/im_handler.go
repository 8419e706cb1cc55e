package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/consts"
	"Courier/internal/pkg/response"
	"Courier/internal/service"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService   service.IMService
	readService service.ReadService
}

func NewIMHandler(imService service.IMService, readService service.ReadService) *IMHandler {
	return &IMHandler{imService: imService, readService: readService}
}

// StartConversation 发起会话
func (s *IMHandler) StartConversation(c *gin.Context) {
	var req dto.StartConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.StartConversation(c.Request.Context(), c.GetString(consts.UserIDKey), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListConversations 会话列表
func (s *IMHandler) ListConversations(c *gin.Context) {
	var q dto.ConversationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.ListConversations(c.Request.Context(), c.GetString(consts.UserIDKey), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) GetConversation(c *gin.Context) {
	res, err := s.imService.GetConversation(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) UpdateConversation(c *gin.Context) {
	var req dto.UpdateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.UpdateConversation(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// UpdateMember 个人会话设置 (免打扰/归档/置顶)
func (s *IMHandler) UpdateMember(c *gin.Context) {
	var req dto.UpdateMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.UpdateMember(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) GetParticipants(c *gin.Context) {
	res, err := s.imService.GetParticipants(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetHistory 历史消息, 以 before_seq 作为游标
func (s *IMHandler) GetHistory(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.GetHistory(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息, 与 websocket send_message 走同一流程
func (s *IMHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	req.ConversationID = c.Param("id")

	res, err := s.imService.SendMessage(c.Request.Context(), c.GetString(consts.UserIDKey), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) MarkConversationRead(c *gin.Context) {
	res, err := s.readService.MarkConversationRead(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) MarkMessageRead(c *gin.Context) {
	res, err := s.readService.MarkMessageRead(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) EditMessage(c *gin.Context) {
	var req dto.EditMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrContentEmpty)
		return
	}
	res, err := s.imService.EditMessage(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) DeleteMessage(c *gin.Context) {
	if err := s.imService.DeleteMessage(c.Request.Context(), c.GetString(consts.UserIDKey), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SearchMessages 在当前用户参与的会话内搜索
func (s *IMHandler) SearchMessages(c *gin.Context) {
	var q dto.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.imService.SearchMessages(c.Request.Context(), c.GetString(consts.UserIDKey), &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) GetStats(c *gin.Context) {
	res, err := s.imService.GetStats(c.Request.Context(), c.GetString(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
