package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestConcurrentSendsCountUnreadExactly(t *testing.T) {
	env := newFileTestEnv(t, 4)
	// 两个服务实例各自持有条带锁, 相当于两个进程, 只能依赖数据库的原子自增
	procA := env.imService(t, nil)
	procB := env.imService(t, nil)
	ctx := context.Background()

	conv, err := procA.StartConversation(ctx, "alice", &dto.StartConversationReq{
		ParticipantIDs: []string{"bob", "carol"},
		Type:           model.ConversationTypeGeneral,
	})
	if err != nil {
		t.Fatal(err)
	}

	const perWorker = 10
	workers := []struct {
		svc    IMService
		sender string
	}{
		{procA, "alice"}, {procB, "alice"}, {procA, "carol"}, {procB, "carol"},
	}
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if _, err := w.svc.SendMessage(ctx, w.sender, &dto.SendMessageReq{ConversationID: conv.ID, Content: "ping"}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		t.Fatal(err)
	}

	total := perWorker * len(workers)
	if got := env.member(t, conv.ID, "bob").UnreadCount; got != int64(total) {
		t.Fatalf("bob unread = %d, want %d", got, total)
	}
	// 自己发送的消息不计入未读
	if got := env.member(t, conv.ID, "alice").UnreadCount; got != int64(total/2) {
		t.Fatalf("alice unread = %d, want %d", got, total/2)
	}

	history, err := procB.GetHistory(ctx, "bob", conv.ID, &dto.HistoryQuery{PageSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[uint64]bool, len(history))
	for _, m := range history {
		if seen[m.Seq] || m.Seq == 0 || m.Seq > uint64(total) {
			t.Fatalf("seq %d duplicated or out of range", m.Seq)
		}
		seen[m.Seq] = true
	}
	if len(seen) != total {
		t.Fatalf("history has %d distinct seqs, want %d", len(seen), total)
	}

	res, err := env.readService().MarkConversationRead(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.UnreadCount != 0 || env.member(t, conv.ID, "bob").UnreadCount != 0 {
		t.Fatalf("bob unread after read-all = %d", env.member(t, conv.ID, "bob").UnreadCount)
	}
}

func TestReadAllInterleavedWithSendsNeverLosesMessages(t *testing.T) {
	env := newFileTestEnv(t, 4)
	svc := env.imService(t, nil)
	read := env.readService()
	ctx := context.Background()
	conv := env.startDirect(t, svc, "alice", "bob")

	const sends = 20
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < sends; i++ {
			if _, err := svc.SendMessage(ctx, "alice", &dto.SendMessageReq{ConversationID: conv.ID, Content: "tick"}); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 5; i++ {
			if _, err := read.MarkConversationRead(ctx, "bob", conv.ID); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := env.member(t, conv.ID, "bob").UnreadCount; got < 0 || got > sends {
		t.Fatalf("bob unread during interleaving = %d", got)
	}

	// 所有发送提交后的一次全部已读清零, 且每条消息恰好一条已读记录
	if _, err := read.MarkConversationRead(ctx, "bob", conv.ID); err != nil {
		t.Fatal(err)
	}
	if got := env.member(t, conv.ID, "bob").UnreadCount; got != 0 {
		t.Fatalf("bob unread after final read-all = %d", got)
	}
	var rows int64
	env.db.Model(&model.MessageReadStatus{}).Where("user_id = ?", "bob").Count(&rows)
	if rows != sends {
		t.Fatalf("bob read statuses = %d, want %d", rows, sends)
	}
}
