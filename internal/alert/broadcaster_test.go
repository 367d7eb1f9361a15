package alert

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestBroadcaster(ttl time.Duration) *Broadcaster {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroadcaster(ttl, logger, nil)
}

// receiveAlert はチャネルからタイムアウト付きで1件受信するヘルパー。
func receiveAlert(t *testing.T, ch <-chan *Alert) *Alert {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return nil
	}
}

// TestShowSuccess_DeliversToSubscriber は発行したアラートが購読者に届くことをテストする。
func TestShowSuccess_DeliversToSubscriber(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.ShowSuccess("保存しました")

	a := receiveAlert(t, ch)
	if a == nil {
		t.Fatal("expected alert, got nil")
	}
	if a.Kind != KindSuccess {
		t.Errorf("Kind = %q, want %q", a.Kind, KindSuccess)
	}
	if a.Message != "保存しました" {
		t.Errorf("Message = %q, want %q", a.Message, "保存しました")
	}
}

// TestShow_SupersedesCurrentAlert は新しい発行が表示中のアラートを置き換えることをテストする。
func TestShow_SupersedesCurrentAlert(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	b.ShowError("first")
	b.ShowInfo("second", 0)

	cur := b.Current()
	if cur == nil {
		t.Fatal("expected current alert")
	}
	if cur.Kind != KindInfo || cur.Message != "second" {
		t.Errorf("current = %+v, want info/second", cur)
	}
}

// TestAutoDismiss_ClearsAfterTTL は表示時間経過後にアラートが自動消去されることをテストする。
func TestAutoDismiss_ClearsAfterTTL(t *testing.T) {
	b := newTestBroadcaster(20 * time.Millisecond)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.ShowSuccess("short-lived")

	if a := receiveAlert(t, ch); a == nil {
		t.Fatal("expected alert delivery before dismissal")
	}
	// 自動消去はnilスナップショットとして配信される
	if a := receiveAlert(t, ch); a != nil {
		t.Errorf("expected nil (cleared) snapshot, got %+v", a)
	}
	if cur := b.Current(); cur != nil {
		t.Errorf("Current after dismiss = %+v, want nil", cur)
	}
}

// TestShow_RestartsDismissTimer は再発行で自動消去タイマーがリセットされることをテストする。
func TestShow_RestartsDismissTimer(t *testing.T) {
	b := newTestBroadcaster(60 * time.Millisecond)
	defer b.Close()

	b.ShowSuccess("first")
	time.Sleep(40 * time.Millisecond)
	b.ShowSuccess("second")
	time.Sleep(40 * time.Millisecond)

	// 最初のタイマーが生きていればここで消去されているはず
	cur := b.Current()
	if cur == nil {
		t.Fatal("second alert should still be visible; dismiss timer was not restarted")
	}
	if cur.Message != "second" {
		t.Errorf("Message = %q, want %q", cur.Message, "second")
	}
}

// TestClear_PublishesNilSnapshot は手動Clearが購読者にnilとして配信されることをテストする。
func TestClear_PublishesNilSnapshot(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.ShowError("oops")
	receiveAlert(t, ch)

	b.Clear()
	if a := receiveAlert(t, ch); a != nil {
		t.Errorf("expected nil snapshot after Clear, got %+v", a)
	}
}

// TestClear_WithoutCurrent_DoesNothing は表示中でない状態のClearが配信を発生させないことをテストする。
func TestClear_WithoutCurrent_DoesNothing(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Clear()

	select {
	case a := <-ch:
		t.Errorf("unexpected delivery: %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestUnsubscribe_StopsDelivery は購読解除後に配信されないことをテストする。
func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	// 解除済みチャネルはクローズされる
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// 解除後の発行でpanicしない
	b.ShowSuccess("after unsubscribe")
}

// TestClose_ShowIsIgnored はClose後の発行が無視されることをテストする。
func TestClose_ShowIsIgnored(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	b.Close()

	b.ShowSuccess("ignored")
	if cur := b.Current(); cur != nil {
		t.Errorf("Current after Close = %+v, want nil", cur)
	}

	// 二重Closeも安全
	b.Close()
}

// TestSlowSubscriber_DoesNotBlockShow は受信しない購読者がいても発行がブロックしないことをテストする。
func TestSlowSubscriber_DoesNotBlockShow(t *testing.T) {
	b := newTestBroadcaster(time.Minute)
	defer b.Close()

	_, cancel := b.Subscribe() // 一切受信しない購読者
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.ShowInfo("burst", time.Minute)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Show blocked on slow subscriber")
	}
}
