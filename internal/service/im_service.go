package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/database"
	"Courier/internal/pkg/es"
	"Courier/internal/pkg/logger"
	"Courier/internal/pkg/userclient"
	"Courier/internal/pkg/util"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	log "log/slog"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const convLockStripes = 64

// IMService 即时通讯服务接口定义
type IMService interface {
	StartConversation(ctx context.Context, userID string, req *dto.StartConversationReq) (*dto.ConversationDTO, error)
	ListConversations(ctx context.Context, userID string, q *dto.ConversationQuery) (*dto.PageDTO[*dto.ConversationDTO], error)
	GetConversation(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error)
	UpdateConversation(ctx context.Context, userID, convID string, req *dto.UpdateConversationReq) (*dto.ConversationDTO, error)
	UpdateMember(ctx context.Context, userID, convID string, req *dto.UpdateMemberReq) (*dto.ConversationDTO, error)
	GetParticipants(ctx context.Context, userID, convID string) ([]*dto.ParticipantDTO, error)
	GetStats(ctx context.Context, userID string) (*dto.IMStatsDTO, error)
	ActiveConversationIDs(ctx context.Context, userID string) ([]string, error)
	CheckMember(ctx context.Context, convID, userID string) error
	TouchLastSeen(ctx context.Context, userID string) error

	SendMessage(ctx context.Context, senderID string, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	EditMessage(ctx context.Context, userID, msgID string, req *dto.EditMessageReq) (*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, userID, msgID string) error
	GetHistory(ctx context.Context, userID, convID string, q *dto.HistoryQuery) ([]*dto.MessageDTO, error)
	SearchMessages(ctx context.Context, userID string, q *dto.SearchQuery) ([]*dto.MessageDTO, error)

	Close()
}

// NotificationCreator 创建通知的入口
type NotificationCreator interface {
	CreateNotification(ctx context.Context, req *dto.CreateNotificationReq) (*dto.NotificationDTO, error)
}

// ProfileLookup 用户资料查询
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*userclient.Profile, error)
	GetProfiles(ctx context.Context, userIDs []string) map[string]*userclient.Profile
}

type IMOptions struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
	SearchLimit      int
	NotifyTimeout    time.Duration
}

func (o IMOptions) withDefaults() IMOptions {
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 5000
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 20
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = 50
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 5 * time.Second
	}
	return o
}

type imServiceImpl struct {
	convRepo     repository.ConversationRepo
	messageRepo  repository.MessageRepo
	messageIndex es.MessageRepo
	broadcaster  realtime.Broadcaster
	notifier     NotificationCreator
	profiles     ProfileLookup
	online       OnlineChecker
	opts         IMOptions

	// 同一会话的 落库 -> 广播 在条带锁内完成, 保证订阅者按提交顺序收到
	locks [convLockStripes]sync.Mutex
	wg    sync.WaitGroup
}

// NewIMService messageIndex/profiles 可为空
func NewIMService(
	convRepo repository.ConversationRepo,
	messageRepo repository.MessageRepo,
	messageIndex es.MessageRepo,
	broadcaster realtime.Broadcaster,
	notifier NotificationCreator,
	profiles ProfileLookup,
	online OnlineChecker,
	opts IMOptions,
) IMService {
	return &imServiceImpl{
		convRepo:     convRepo,
		messageRepo:  messageRepo,
		messageIndex: messageIndex,
		broadcaster:  broadcaster,
		notifier:     notifier,
		profiles:     profiles,
		online:       online,
		opts:         opts.withDefaults(),
	}
}

// StartConversation 发起会话; 相同两人的单聊复用已有会话
func (s *imServiceImpl) StartConversation(ctx context.Context, userID string, req *dto.StartConversationReq) (*dto.ConversationDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}

	ids := make([]string, 0, len(req.ParticipantIDs)+1)
	ids = append(ids, req.ParticipantIDs...)
	participants := util.UniqueSorted(append(ids, userID))
	if len(participants) < 2 {
		return nil, ErrParticipantsInvalid
	}

	convType := req.Type
	if convType == "" {
		convType = model.ConversationTypeDirect
	}
	if _, ok := model.ConversationTypes[convType]; !ok {
		return nil, ErrConversationTypeInvalid
	}

	var directKey *string
	if convType == model.ConversationTypeDirect {
		if len(participants) != 2 {
			return nil, ErrParticipantsInvalid
		}
		key := participants[0] + ":" + participants[1]
		directKey = &key
		existing, err := s.convRepo.GetConversationByDirectKey(ctx, key)
		if err == nil {
			return s.reopenDirect(ctx, userID, existing)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	title := util.Normalize(req.Title)
	if title == "" {
		title = fmt.Sprintf("Conversation with %d participants", len(participants))
	}
	conv := &model.Conversation{
		Type:         convType,
		Title:        title,
		Participants: datatypes.JSONSlice[string](participants),
		DirectKey:    directKey,
		JobID:        req.JobID,
		BidID:        req.BidID,
		ProjectID:    req.ProjectID,
		IsActive:     true,
	}
	if err := s.convRepo.CreateConversation(ctx, conv, participants); err != nil {
		// 并发创建同一单聊
		if directKey != nil && database.IsDuplicateKey(err) {
			existing, getErr := s.convRepo.GetConversationByDirectKey(ctx, *directKey)
			if getErr == nil {
				return s.reopenDirect(ctx, userID, existing)
			}
		}
		return nil, err
	}

	log.InfoContext(ctx, "conversation created", "conversation_id", conv.ID, "type", convType, "participants", len(participants))
	return s.GetConversation(ctx, userID, conv.ID)
}

func (s *imServiceImpl) reopenDirect(ctx context.Context, userID string, conv *model.Conversation) (*dto.ConversationDTO, error) {
	if !conv.IsActive || conv.IsArchived {
		err := s.convRepo.UpdateConversation(ctx, conv.ID, map[string]interface{}{
			"is_active":   true,
			"is_archived": false,
		})
		if err != nil {
			return nil, err
		}
	}
	return s.GetConversation(ctx, userID, conv.ID)
}

func (s *imServiceImpl) ListConversations(ctx context.Context, userID string, q *dto.ConversationQuery) (*dto.PageDTO[*dto.ConversationDTO], error) {
	page, size, offset := util.ClampPage(q.Page, q.PageSize, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	members, total, err := s.convRepo.GetUserConversationMemList(ctx, userID, repository.ConversationFilter{
		Type:     q.Type,
		JobID:    q.JobID,
		BidID:    q.BidID,
		Archived: q.Archived,
		Offset:   offset,
		Limit:    size,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*dto.ConversationDTO, 0, len(members))
	for _, m := range members {
		items = append(items, toConversationDTO(m))
	}
	return &dto.PageDTO[*dto.ConversationDTO]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (s *imServiceImpl) GetConversation(ctx context.Context, userID, convID string) (*dto.ConversationDTO, error) {
	member, err := s.requireMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	return toConversationDTO(member), nil
}

// UpdateConversation 修改标题或状态, 会话只归档不删除
func (s *imServiceImpl) UpdateConversation(ctx context.Context, userID, convID string, req *dto.UpdateConversationReq) (*dto.ConversationDTO, error) {
	if err := util.ValidateDTO(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParamInvalid, err)
	}
	if _, err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		if title := util.Normalize(*req.Title); title != "" {
			updates["title"] = title
		}
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsArchived != nil {
		updates["is_archived"] = *req.IsArchived
	}
	if len(updates) > 0 {
		if err := s.convRepo.UpdateConversation(ctx, convID, updates); err != nil {
			return nil, err
		}
	}
	return s.GetConversation(ctx, userID, convID)
}

// UpdateMember 修改当前用户的免打扰/归档/置顶
func (s *imServiceImpl) UpdateMember(ctx context.Context, userID, convID string, req *dto.UpdateMemberReq) (*dto.ConversationDTO, error) {
	if _, err := s.requireMember(ctx, convID, userID); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.IsMuted != nil {
		updates["is_muted"] = *req.IsMuted
	}
	if req.IsArchived != nil {
		updates["is_archived"] = *req.IsArchived
	}
	if req.IsPinned != nil {
		updates["is_pinned"] = *req.IsPinned
	}
	if len(updates) > 0 {
		if err := s.convRepo.UpdateMember(ctx, convID, userID, updates); err != nil {
			return nil, err
		}
	}
	return s.GetConversation(ctx, userID, convID)
}

func (s *imServiceImpl) GetParticipants(ctx context.Context, userID, convID string) ([]*dto.ParticipantDTO, error) {
	member, err := s.requireMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}

	ids := []string(member.Conversation.Participants)
	var profiles map[string]*userclient.Profile
	if s.profiles != nil {
		profiles = s.profiles.GetProfiles(ctx, ids)
	}

	res := make([]*dto.ParticipantDTO, 0, len(ids))
	for _, id := range ids {
		p := &dto.ParticipantDTO{UserID: id}
		if profile, ok := profiles[id]; ok && profile != nil {
			p.Username = profile.Username
			p.FullName = profile.FullName
			p.AvatarURL = profile.AvatarURL
		}
		if s.online != nil {
			p.IsOnline = s.online.IsOnline(id)
		}
		res = append(res, p)
	}
	return res, nil
}

func (s *imServiceImpl) GetStats(ctx context.Context, userID string) (*dto.IMStatsDTO, error) {
	stats, err := s.convRepo.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.IMStatsDTO{
		TotalConversations:  stats.TotalConversations,
		UnreadConversations: stats.UnreadConversations,
		TotalUnreadMessages: stats.TotalUnreadMessages,
	}, nil
}

// ActiveConversationIDs 连接建立时需要加入的会话组
func (s *imServiceImpl) ActiveConversationIDs(ctx context.Context, userID string) ([]string, error) {
	return s.convRepo.GetActiveConversationIDs(ctx, userID)
}

// CheckMember 成员资格以持久化数据为准
func (s *imServiceImpl) CheckMember(ctx context.Context, convID, userID string) error {
	_, err := s.requireMember(ctx, convID, userID)
	return err
}

func (s *imServiceImpl) TouchLastSeen(ctx context.Context, userID string) error {
	return s.convRepo.TouchLastSeen(ctx, userID, time.Now().UTC())
}

// Close 等待异步的索引与通知任务结束
func (s *imServiceImpl) Close() {
	s.wg.Wait()
	log.Info("IMService shut down gracefully")
}

func (s *imServiceImpl) requireMember(ctx context.Context, convID, userID string) (*model.ConversationMember, error) {
	member, err := s.convRepo.GetMember(ctx, convID, userID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if _, convErr := s.convRepo.GetConversation(ctx, convID); errors.Is(convErr, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	return nil, ErrNotConversationMember
}

func (s *imServiceImpl) lockFor(convID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(convID))
	return &s.locks[h.Sum32()%convLockStripes]
}

// async 提交后的旁路任务, 与请求生命周期解耦但保留 trace_id
func (s *imServiceImpl) async(ctx context.Context, fn func(ctx context.Context)) {
	traceID := logger.TraceID(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), traceID), s.opts.NotifyTimeout)
		defer cancel()
		fn(bg)
	}()
}

func toConversationDTO(m *model.ConversationMember) *dto.ConversationDTO {
	res := &dto.ConversationDTO{}
	_ = copier.Copy(res, &m.Conversation)
	res.Participants = []string(m.Conversation.Participants)
	if res.Participants == nil {
		res.Participants = []string{}
	}
	res.UnreadCount = m.UnreadCount
	res.IsMuted = m.IsMuted
	res.IsPinned = m.IsPinned
	res.MemberArchived = m.IsArchived
	res.LastReadSeq = m.LastReadSeq
	res.LastReadMessageID = m.LastReadMessageID
	res.LastSeenAt = m.LastSeenAt
	return res
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	res := &dto.MessageDTO{}
	_ = copier.Copy(res, m)
	return res
}
