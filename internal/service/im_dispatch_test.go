package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/util"
	"Courier/internal/realtime"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func send(t *testing.T, svc IMService, senderID, convID, content string) *dto.MessageDTO {
	t.Helper()
	msg, err := svc.SendMessage(context.Background(), senderID, &dto.SendMessageReq{
		ConversationID: convID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return msg
}

func TestStartDirectConversationIsReused(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	ctx := context.Background()

	first := env.startDirect(t, svc, "alice", "bob")
	if first.Type != model.ConversationTypeDirect {
		t.Fatalf("type = %s, want direct", first.Type)
	}

	// 对方发起同一单聊, 复用并重新激活
	if _, err := svc.UpdateConversation(ctx, "alice", first.ID, &dto.UpdateConversationReq{IsArchived: util.Ptr(true)}); err != nil {
		t.Fatal(err)
	}
	second := env.startDirect(t, svc, "bob", "alice")
	if second.ID != first.ID {
		t.Fatalf("direct conversation duplicated: %s vs %s", first.ID, second.ID)
	}
	if second.IsArchived {
		t.Fatal("reused conversation should be unarchived")
	}
}

func TestStartConversationRejectsSelfOnly(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)

	_, err := svc.StartConversation(context.Background(), "alice", &dto.StartConversationReq{ParticipantIDs: []string{"alice"}})
	if !errors.Is(err, ErrParticipantsInvalid) {
		t.Fatalf("err = %v, want ErrParticipantsInvalid", err)
	}
}

func TestSendMessageAssignsSeqAndCountsUnread(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")

	m1 := send(t, svc, "alice", conv.ID, "hello")
	m2 := send(t, svc, "alice", conv.ID, "  are you there?  ")
	m3 := send(t, svc, "bob", conv.ID, "yes")

	if m1.Seq != 1 || m2.Seq != 2 || m3.Seq != 3 {
		t.Fatalf("seqs = %d, %d, %d", m1.Seq, m2.Seq, m3.Seq)
	}
	if m2.Content != "are you there?" {
		t.Fatalf("content = %q, want trimmed", m2.Content)
	}
	if got := env.member(t, conv.ID, "bob").UnreadCount; got != 2 {
		t.Fatalf("bob unread = %d, want 2", got)
	}
	if got := env.member(t, conv.ID, "alice").UnreadCount; got != 1 {
		t.Fatalf("alice unread = %d, want 1", got)
	}

	frames := env.broadcaster.ofType(dto.FrameMessage)
	if len(frames) == 0 {
		t.Fatal("no message frames published")
	}
}

func TestSendMessageTimestampsAreUTC(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")

	msg := send(t, svc, "alice", conv.ID, "utc please")
	if msg.CreatedAt.Location() != time.UTC {
		t.Fatalf("message created_at location = %v", msg.CreatedAt.Location())
	}
	stored, err := env.convRepo.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastMessageAt == nil || !stored.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatalf("last_message_at = %v, want %v", stored.LastMessageAt, msg.CreatedAt)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")
	other := env.startDirect(t, svc, "alice", "carol")
	foreign := send(t, svc, "alice", other.ID, "elsewhere")
	ctx := context.Background()

	cases := []struct {
		name   string
		sender string
		req    *dto.SendMessageReq
		want   error
	}{
		{"empty", "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: "   "}, ErrContentEmpty},
		{"too long", "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: strings.Repeat("x", 51)}, ErrContentTooLong},
		{"bad type", "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: "hi", MessageType: "video"}, ErrMessageTypeInvalid},
		{"not member", "mallory", &dto.SendMessageReq{ConversationID: conv.ID, Content: "hi"}, ErrNotConversationMember},
		{"missing conversation", "alice", &dto.SendMessageReq{ConversationID: "nope", Content: "hi"}, ErrConversationNotFound},
		{"reply elsewhere", "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: "hi", ReplyTo: &foreign.ID}, ErrReplyInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, tc.sender, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if got := env.member(t, conv.ID, "bob").UnreadCount; got != 0 {
		t.Fatalf("rejected sends changed unread to %d", got)
	}
}

func TestSendMessageToInactiveConversation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")
	ctx := context.Background()

	if _, err := svc.UpdateConversation(ctx, "alice", conv.ID, &dto.UpdateConversationReq{IsActive: util.Ptr(false)}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.SendMessage(ctx, "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: "hi"})
	if !errors.Is(err, ErrConversationInactive) {
		t.Fatalf("err = %v, want ErrConversationInactive", err)
	}
}

func TestEditAndDeleteRequireSender(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")
	msg := send(t, svc, "alice", conv.ID, "draft")
	ctx := context.Background()

	if _, err := svc.EditMessage(ctx, "bob", msg.ID, &dto.EditMessageReq{Content: "hijack"}); !errors.Is(err, ErrNotMessageSender) {
		t.Fatalf("edit by other: err = %v", err)
	}
	if err := svc.DeleteMessage(ctx, "bob", msg.ID); !errors.Is(err, ErrNotMessageSender) {
		t.Fatalf("delete by other: err = %v", err)
	}

	edited, err := svc.EditMessage(ctx, "alice", msg.ID, &dto.EditMessageReq{Content: "final"})
	if err != nil {
		t.Fatal(err)
	}
	if !edited.IsEdited || edited.Content != "final" || edited.EditedAt == nil {
		t.Fatalf("edited = %+v", edited)
	}

	if err = svc.DeleteMessage(ctx, "alice", msg.ID); err != nil {
		t.Fatal(err)
	}
	if _, err = svc.EditMessage(ctx, "alice", msg.ID, &dto.EditMessageReq{Content: "again"}); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("edit after delete: err = %v", err)
	}
	if err = svc.DeleteMessage(ctx, "alice", msg.ID); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("second delete: err = %v", err)
	}

	if n := len(env.broadcaster.ofType(dto.FrameMessageUpdate)); n == 0 {
		t.Fatal("edit/delete should publish message_update frames")
	}
}

func TestMessageUpdatesReachUserGroup(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")

	// bob 只在个人组, 未打开该会话
	bobConn := &recordingSubscriber{id: "bob-1", userID: "bob"}
	env.hub.Register(bobConn)
	// alice 同时在会话组与个人组, 每个事件只收到一次
	aliceConn := &recordingSubscriber{id: "alice-1", userID: "alice"}
	env.hub.Register(aliceConn)
	env.hub.Join(realtime.ConversationGroup(conv.ID), aliceConn)

	msg := send(t, svc, "alice", conv.ID, "first draft")
	ctx := context.Background()
	if _, err := svc.EditMessage(ctx, "alice", msg.ID, &dto.EditMessageReq{Content: "second draft"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteMessage(ctx, "alice", msg.ID); err != nil {
		t.Fatal(err)
	}

	if got := bobConn.count(dto.FrameMessage); got != 1 {
		t.Fatalf("bob message frames = %d, want 1", got)
	}
	if got := bobConn.count(dto.FrameMessageUpdate); got != 2 {
		t.Fatalf("bob message_update frames = %d, want 2", got)
	}
	if got := aliceConn.count(dto.FrameMessageUpdate); got != 2 {
		t.Fatalf("alice message_update frames = %d, want 2", got)
	}

	userGroupUpdates := 0
	for _, f := range env.broadcaster.ofType(dto.FrameMessageUpdate) {
		if f.Group == realtime.UserGroup("bob") {
			userGroupUpdates++
		}
	}
	if userGroupUpdates != 2 {
		t.Fatalf("updates published to bob's group = %d, want 2", userGroupUpdates)
	}
}

func TestHistoryExcludesDeletedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")
	ctx := context.Background()

	send(t, svc, "alice", conv.ID, "one")
	gone := send(t, svc, "alice", conv.ID, "two")
	send(t, svc, "bob", conv.ID, "three")
	if err := svc.DeleteMessage(ctx, "alice", gone.ID); err != nil {
		t.Fatal(err)
	}

	history, err := svc.GetHistory(ctx, "bob", conv.ID, &dto.HistoryQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Content != "three" || history[1].Content != "one" {
		got := make([]string, 0, len(history))
		for _, m := range history {
			got = append(got, m.Content)
		}
		t.Fatalf("history = %v, want [three one]", got)
	}

	page, err := svc.GetHistory(ctx, "bob", conv.ID, &dto.HistoryQuery{BeforeSeq: 3, PageSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Seq != 1 {
		t.Fatalf("page before seq 3 = %+v", page)
	}

	if _, err = svc.GetHistory(ctx, "mallory", conv.ID, &dto.HistoryQuery{}); !errors.Is(err, ErrNotConversationMember) {
		t.Fatalf("non-member history: err = %v", err)
	}
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	env := newTestEnv(t)
	svc := env.imService(t, nil)
	conv := env.startDirect(t, svc, "alice", "bob")
	hidden := env.startDirect(t, svc, "carol", "dave")
	ctx := context.Background()

	send(t, svc, "alice", conv.ID, "invoice attached")
	send(t, svc, "bob", conv.ID, "thanks")
	send(t, svc, "carol", hidden.ID, "invoice for dave")

	res, err := svc.SearchMessages(ctx, "bob", &dto.SearchQuery{Q: "invoice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ConversationID != conv.ID {
		t.Fatalf("search = %+v", res)
	}

	if _, err = svc.SearchMessages(ctx, "bob", &dto.SearchQuery{Q: "  "}); !errors.Is(err, ErrSearchQueryEmpty) {
		t.Fatalf("empty query: err = %v", err)
	}
	if _, err = svc.SearchMessages(ctx, "bob", &dto.SearchQuery{Q: "invoice", ConversationID: hidden.ID}); !errors.Is(err, ErrNotConversationMember) {
		t.Fatalf("foreign conversation filter: err = %v", err)
	}
}

func TestSendMessageNotifiesOtherParticipants(t *testing.T) {
	env := newTestEnv(t)
	queue := &recordingQueue{}
	notifs := env.notificationService(queue)
	svc := env.imService(t, notifs)
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, "alice", &dto.StartConversationReq{
		ParticipantIDs: []string{"bob", "carol"},
		Type:           model.ConversationTypeGeneral,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err = svc.UpdateMember(ctx, "carol", conv.ID, &dto.UpdateMemberReq{IsMuted: util.Ptr(true)}); err != nil {
		t.Fatal(err)
	}

	send(t, svc, "alice", conv.ID, "standup in five")
	// 等待异步通知完成
	svc.Close()

	for user, want := range map[string]int64{"alice": 0, "bob": 1, "carol": 0} {
		stats, err := notifs.GetStats(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Total != want {
			t.Fatalf("%s notifications = %d, want %d", user, stats.Total, want)
		}
	}
	if len(queue.drain()) != 1 {
		t.Fatal("bob's web delivery should be enqueued")
	}
}
