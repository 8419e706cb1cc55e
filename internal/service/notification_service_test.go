package service

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/util"
	"context"
	"errors"
	"testing"
)

func TestCreateNotificationValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService(nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *dto.CreateNotificationReq
		want error
	}{
		{"missing recipient", &dto.CreateNotificationReq{RecipientID: " ", Type: "new_message"}, ErrRecipientMissing},
		{"bad priority", &dto.CreateNotificationReq{RecipientID: "alice", Type: "new_message", Priority: "critical"}, ErrPriorityInvalid},
		{"unknown type", &dto.CreateNotificationReq{RecipientID: "alice", Type: "lottery_won"}, ErrNotificationTypeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateNotification(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateNotificationInactiveType(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService(nil)
	if err := env.db.Model(&model.NotificationType{}).Where("name = ?", "job_updated").Update("is_active", false).Error; err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateNotification(context.Background(), &dto.CreateNotificationReq{RecipientID: "alice", Type: "job_updated"})
	if !errors.Is(err, ErrNotificationTypeInactive) {
		t.Fatalf("err = %v, want ErrNotificationTypeInactive", err)
	}
}

func TestCreateNotificationWithDisabledPreference(t *testing.T) {
	env := newTestEnv(t)
	queue := &recordingQueue{}
	svc := env.notificationService(queue)
	prefs := NewPreferenceService(env.prefRepo, env.catalogRepo, env.resolver())
	ctx := context.Background()

	if _, err := prefs.UpdatePreference(ctx, "alice", "profile_updated", &dto.UpdatePreferenceReq{IsEnabled: util.Ptr(false)}); err != nil {
		t.Fatal(err)
	}
	n, err := svc.CreateNotification(ctx, &dto.CreateNotificationReq{RecipientID: "alice", Type: "profile_updated"})
	if err != nil {
		t.Fatal(err)
	}
	// 通知仍然落库, 只是没有任何渠道投递
	if n.Status != model.NotificationStatusPending || n.Priority != model.PriorityNormal {
		t.Fatalf("notification = %+v", n)
	}
	if ids := queue.drain(); len(ids) != 0 {
		t.Fatalf("enqueued %v, want none", ids)
	}
	report, err := svc.GetDeliveries(ctx, "alice", n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Deliveries) != 0 {
		t.Fatalf("deliveries = %d, want 0", len(report.Deliveries))
	}
}

func TestNotificationReadLifecycle(t *testing.T) {
	env := newTestEnv(t)
	svc := env.notificationService(nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := svc.CreateNotification(ctx, &dto.CreateNotificationReq{
			RecipientID: "alice",
			Type:        "job_published",
			Data:        map[string]any{"title": "Website"},
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, n.ID)
	}

	if err := svc.MarkRead(ctx, "alice", ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRead(ctx, "alice", ids[0]); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, "bob", ids[1]); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("foreign mark read: err = %v", err)
	}
	if _, err := svc.GetDeliveries(ctx, "bob", ids[1]); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("foreign deliveries: err = %v", err)
	}

	stats, err := svc.GetStats(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Unread != 2 || stats.Read != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	res, err := svc.MarkAllRead(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 2 {
		t.Fatalf("mark all updated %d, want 2", res.Updated)
	}

	page, err := svc.ListNotifications(ctx, "alice", &dto.NotificationQuery{Status: model.NotificationStatusRead})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 {
		t.Fatalf("read notifications = %d, want 3", page.Total)
	}

	if err = svc.DeleteNotification(ctx, ids[2]); err != nil {
		t.Fatal(err)
	}
	if err = svc.DeleteNotification(ctx, ids[2]); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}
