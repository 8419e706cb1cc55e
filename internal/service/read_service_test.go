package service

import (
	"Courier/internal/api/dto"
	"context"
	"errors"
	"testing"
)

func TestMarkConversationReadClearsUnread(t *testing.T) {
	env := newTestEnv(t)
	im := env.imService(t, nil)
	reads := env.readService()
	conv := env.startDirect(t, im, "alice", "bob")
	ctx := context.Background()

	send(t, im, "alice", conv.ID, "one")
	send(t, im, "alice", conv.ID, "two")
	send(t, im, "bob", conv.ID, "mine")

	res, err := reads.MarkConversationRead(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 2 || res.UnreadCount != 0 {
		t.Fatalf("result = %+v, want marked 2 unread 0", res)
	}
	m := env.member(t, conv.ID, "bob")
	if m.UnreadCount != 0 || m.LastReadSeq != 3 {
		t.Fatalf("member = unread %d seq %d", m.UnreadCount, m.LastReadSeq)
	}

	// 再次调用无新增
	again, err := reads.MarkConversationRead(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Marked != 0 {
		t.Fatalf("second mark = %d, want 0", again.Marked)
	}

	receipts := env.broadcaster.ofType(dto.FrameReadReceipt)
	if len(receipts) == 0 || receipts[0].ExcludeUser != "bob" {
		t.Fatalf("receipt frames = %+v", receipts)
	}
}

func TestMarkConversationReadRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	im := env.imService(t, nil)
	conv := env.startDirect(t, im, "alice", "bob")

	_, err := env.readService().MarkConversationRead(context.Background(), "mallory", conv.ID)
	if !errors.Is(err, ErrNotConversationMember) {
		t.Fatalf("err = %v, want ErrNotConversationMember", err)
	}
}

func TestMarkMessageReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	im := env.imService(t, nil)
	reads := env.readService()
	conv := env.startDirect(t, im, "alice", "bob")
	ctx := context.Background()

	first := send(t, im, "alice", conv.ID, "one")
	send(t, im, "alice", conv.ID, "two")

	res, err := reads.MarkMessageRead(ctx, "bob", first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 1 || res.UnreadCount != 1 {
		t.Fatalf("first mark = %+v, want marked 1 unread 1", res)
	}

	res, err = reads.MarkMessageRead(ctx, "bob", first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 0 || res.UnreadCount != 1 {
		t.Fatalf("repeat mark = %+v, want marked 0 unread 1", res)
	}
	if got := env.member(t, conv.ID, "bob").UnreadCount; got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	// 发送者标记自己的消息不影响计数
	res, err = reads.MarkMessageRead(ctx, "alice", first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Marked != 0 {
		t.Fatalf("sender mark = %d, want 0", res.Marked)
	}
}

func TestMarkMessageReadUnknownMessage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.readService().MarkMessageRead(context.Background(), "bob", "missing")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("err = %v, want ErrMessageNotFound", err)
	}
}
